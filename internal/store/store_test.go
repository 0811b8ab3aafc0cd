package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "chat.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLog_AddAndListByServer(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inputs := []Record{
		{AuthorID: 1, ServerID: 10, Text: "hi", CreatedAt: at},
		{AuthorID: 2, ServerID: 20, Text: "elsewhere"},
		{AuthorID: 2, ServerID: 10, Text: "yo"},
		{AuthorID: 1, ServerID: 10, Text: "hi"},
	}
	for _, rec := range inputs {
		if _, err := l.Add(ctx, rec); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}

	got, err := l.ListByServer(ctx, 10)
	if err != nil {
		t.Fatalf("ListByServer error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (duplicates are kept)", len(got))
	}
	wantTexts := []string{"hi", "yo", "hi"}
	wantAuthors := []int64{1, 2, 1}
	for i, rec := range got {
		if rec.Text != wantTexts[i] || rec.AuthorID != wantAuthors[i] || rec.ServerID != 10 {
			t.Errorf("record %d = %+v", i, rec)
		}
	}
	if !got[0].CreatedAt.Equal(at) {
		t.Errorf("createdAt = %v, want %v", got[0].CreatedAt, at)
	}
	if got[1].CreatedAt.IsZero() {
		t.Error("createdAt should be stamped when missing")
	}
}

func TestLog_ListByServerEmpty(t *testing.T) {
	l := newTestLog(t)

	got, err := l.ListByServer(context.Background(), 99)
	if err != nil {
		t.Fatalf("ListByServer error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestLog_Names(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	if err := l.RememberName(ctx, KindUser, 1, "Alice"); err != nil {
		t.Fatalf("RememberName error: %v", err)
	}
	if err := l.RememberName(ctx, KindUser, 1, "Alice B"); err != nil {
		t.Fatalf("RememberName update error: %v", err)
	}
	if err := l.RememberName(ctx, KindServer, 1, "Guild"); err != nil {
		t.Fatalf("RememberName server error: %v", err)
	}
	if err := l.RememberName(ctx, KindUser, 2, "   "); err != nil {
		t.Fatalf("blank names should be ignored: %v", err)
	}

	name, err := l.ResolveUser(ctx, 1)
	if err != nil || name != "Alice B" {
		t.Errorf("ResolveUser = %q, %v", name, err)
	}
	name, err = l.ResolveServer(ctx, 1)
	if err != nil || name != "Guild" {
		t.Errorf("ResolveServer = %q, %v", name, err)
	}
	if _, err := l.ResolveUser(ctx, 2); !errors.Is(err, ErrNameNotFound) {
		t.Errorf("expected ErrNameNotFound, got %v", err)
	}
}

func TestLog_StatsAndServers(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	l.Add(ctx, Record{AuthorID: 1, ServerID: 10, Text: "a"})
	l.Add(ctx, Record{AuthorID: 2, ServerID: 10, Text: "b"})
	l.Add(ctx, Record{AuthorID: 2, ServerID: 30, Text: "c"})
	l.RememberName(ctx, KindUser, 1, "Alice")

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats != (Stats{Messages: 3, Servers: 2, Authors: 2, Names: 1}) {
		t.Errorf("stats = %+v", stats)
	}

	servers, err := l.Servers(ctx)
	if err != nil {
		t.Fatalf("Servers error: %v", err)
	}
	if len(servers) != 2 || servers[0] != 10 || servers[1] != 30 {
		t.Errorf("servers = %v", servers)
	}
}

func TestLog_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	ctx := context.Background()

	l1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	l1.Add(ctx, Record{AuthorID: 1, ServerID: 10, Text: "persisted"})
	l1.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	got, _ := l2.ListByServer(ctx, 10)
	if len(got) != 1 || got[0].Text != "persisted" {
		t.Errorf("got %+v", got)
	}
}
