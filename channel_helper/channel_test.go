package channel_helper

import "testing"

func TestWriteToChannelAndBufferLatest(t *testing.T) {
	ch := make(chan int, 2)
	WriteToChannelAndBufferLatest(ch, 1)
	WriteToChannelAndBufferLatest(ch, 2)
	WriteToChannelAndBufferLatest(ch, 3)

	if len(ch) != 2 {
		t.Fatalf("len = %d, want 2", len(ch))
	}
	if a, b := <-ch, <-ch; a != 2 || b != 3 {
		t.Errorf("got %d, %d; want the two latest values 2, 3", a, b)
	}
}

func TestWriteToUnbufferedChannelNeverBlocks(t *testing.T) {
	ch := make(chan int)
	if WriteToChannelAndBufferLatest(ch, 1) {
		t.Error("nothing was reading, the value cannot have been delivered")
	}
	select {
	case v := <-ch:
		t.Errorf("unexpected value %d on an unread unbuffered channel", v)
	default:
	}
}
