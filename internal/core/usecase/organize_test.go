package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

func TestFileMovesDocumentUnderCategorySlug(t *testing.T) {
	storage := newStorageFake()
	storage.objects["inbox/R&D report.pdf"] = []byte("pdf")
	organizer := NewOrganizer(storage)

	rec := &domain.ProcessingRecord{
		Identity: domain.DocumentIdentity{Location: "inbox/R&D report.pdf", Fingerprint: "fp-1"},
		Category: "R&D / Research",
	}
	filed, err := organizer.File(context.Background(), rec)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if want := domain.CategorySlug("R&D / Research") + "/R&D report.pdf"; filed != want {
		t.Fatalf("filed = %q, want %q", filed, want)
	}
	if _, ok := storage.objects[filed]; !ok {
		t.Fatalf("object not present at destination")
	}
	if storage.tags[filed]["autopilot-category"] != "R&D / Research" {
		t.Fatalf("category tag = %q", storage.tags[filed]["autopilot-category"])
	}
}

func TestFileEmptyCategoryGoesToUnclassified(t *testing.T) {
	storage := newStorageFake()
	storage.objects["memo.txt"] = []byte("memo")
	organizer := NewOrganizer(storage)

	rec := &domain.ProcessingRecord{
		Identity: domain.DocumentIdentity{Location: "memo.txt", Fingerprint: "fp-1"},
	}
	filed, err := organizer.File(context.Background(), rec)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if want := domain.CategorySlug(domain.UnclassifiedCategory) + "/memo.txt"; filed != want {
		t.Fatalf("filed = %q, want %q", filed, want)
	}
}

func TestFileAlreadyAtDestinationSkipsMove(t *testing.T) {
	storage := newStorageFake()
	destination := domain.CategorySlug("Finance") + "/invoice.pdf"
	storage.objects[destination] = []byte("pdf")
	organizer := NewOrganizer(storage)

	rec := &domain.ProcessingRecord{
		Identity: domain.DocumentIdentity{Location: destination, Fingerprint: "fp-1"},
		Category: "Finance",
	}
	if _, err := organizer.File(context.Background(), rec); err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if storage.moves != 0 {
		t.Fatalf("moves = %d, want 0 for replayed filing", storage.moves)
	}
}

func TestFileTagsReviewRequired(t *testing.T) {
	storage := newStorageFake()
	storage.objects["scan.pdf"] = []byte("pdf")
	organizer := NewOrganizer(storage)

	rec := &domain.ProcessingRecord{
		Identity:       domain.DocumentIdentity{Location: "scan.pdf", Fingerprint: "fp-1"},
		Category:       domain.UnclassifiedCategory,
		ReviewRequired: true,
	}
	filed, err := organizer.File(context.Background(), rec)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if storage.tags[filed]["autopilot-review"] != "required" {
		t.Fatalf("review tag missing: %+v", storage.tags[filed])
	}
}
