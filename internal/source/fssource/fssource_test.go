package fssource

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/querent-ai/querent-go/internal/source"
)

func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCheckConnectivitySucceedsOnNonEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "hello")
	s := New(dir, "src-1")
	if err := s.CheckConnectivity(context.Background()); err != nil {
		t.Fatalf("CheckConnectivity: %v", err)
	}
}

func TestCheckConnectivityFailsOnMissingDirectory(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist"), "src-1")
	err := s.CheckConnectivity(context.Background())
	if !source.NotFound(err) {
		t.Fatalf("expected a NotFound error, got %v", err)
	}
}

func TestPollDataYieldsEveryFileWithEOFOnLastChunk(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "hello.txt", "hello world")

	s := New(dir, "src-1")
	s.ChunkSize = 4 // force multiple chunks
	out, errs := s.PollData(context.Background())

	var all []byte
	var sawEOF bool
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case chunk, ok := <-out:
			if !ok {
				break loop
			}
			all = append(all, chunk.Data...)
			if chunk.EOF {
				sawEOF = true
			}
			if chunk.SourceID != "src-1" || chunk.Extension != "txt" {
				t.Fatalf("unexpected identity on chunk: %+v", chunk)
			}
		case err := <-errs:
			if err != nil {
				t.Fatalf("PollData error: %v", err)
			}
		case <-timeout:
			t.Fatal("timed out draining PollData")
		}
	}
	if !bytes.Equal(all, []byte("hello world")) {
		t.Fatalf("got %q, want %q", all, "hello world")
	}
	if !sawEOF {
		t.Fatal("expected the final chunk to carry EOF=true")
	}
}

func TestGetSliceReadsRequestedRange(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "hello.txt", "0123456789")
	s := New(dir, "src-1")

	got, err := s.GetSlice(context.Background(), "hello.txt", 2, 3)
	if err != nil {
		t.Fatalf("GetSlice: %v", err)
	}
	if string(got) != "234" {
		t.Fatalf("got %q, want %q", got, "234")
	}
}

func TestGetAllReadsWholeFile(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "hello.txt", "whole file")
	s := New(dir, "src-1")

	got, err := s.GetAll(context.Background(), "hello.txt")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if string(got) != "whole file" {
		t.Fatalf("got %q, want %q", got, "whole file")
	}
}

func TestFileNumBytesMatchesActualSize(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "hello.txt", "12345")
	s := New(dir, "src-1")

	n, err := s.FileNumBytes(context.Background(), "hello.txt")
	if err != nil {
		t.Fatalf("FileNumBytes: %v", err)
	}
	if n != 5 {
		t.Fatalf("got %d, want 5", n)
	}
}

func TestFileNumBytesNotFound(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "src-1")
	_, err := s.FileNumBytes(context.Background(), "missing.txt")
	if !source.NotFound(err) {
		t.Fatalf("expected a NotFound error, got %v", err)
	}
}

func TestCopyToWritesFullContent(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "hello.txt", "copy me")
	s := New(dir, "src-1")

	var buf bytes.Buffer
	if err := s.CopyTo(context.Background(), "hello.txt", &buf); err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
	if buf.String() != "copy me" {
		t.Fatalf("got %q, want %q", buf.String(), "copy me")
	}
}
