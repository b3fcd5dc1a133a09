package jobs

import "testing"

// TestFeedSince verifies incremental reads by sequence.
func TestFeedSince(t *testing.T) {
	feed := NewFeed(3)
	feed.Record(FeedEntry{Type: EntryTypeStatus, Message: "1"})
	feed.Record(FeedEntry{Type: EntryTypeStatus, Message: "2"})
	feed.Record(FeedEntry{Type: EntryTypeStatus, Message: "3"})

	entries := feed.Since(1)
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Seq != 2 || entries[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", entries)
	}
	if feed.LastSeq() != 3 {
		t.Fatalf("last seq = %d, want 3", feed.LastSeq())
	}
}

// TestFeedCapsHistory verifies buffer limit trimming behavior.
func TestFeedCapsHistory(t *testing.T) {
	feed := NewFeed(2)
	feed.Record(FeedEntry{Message: "1"})
	feed.Record(FeedEntry{Message: "2"})
	feed.Record(FeedEntry{Message: "3"})

	entries := feed.Since(0)
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Message != "2" || entries[1].Message != "3" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

// TestFeedNotifiesAfterRecord checks the push hook receives sequenced entries.
func TestFeedNotifiesAfterRecord(t *testing.T) {
	feed := NewFeed(0)
	var seen []int64
	feed.OnRecord(func(e FeedEntry) { seen = append(seen, e.Seq) })

	feed.Record(FeedEntry{Type: EntryTypeLog})
	feed.Record(FeedEntry{Type: EntryTypeResult})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("seen = %v, want [1 2]", seen)
	}
}
