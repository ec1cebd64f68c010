package services

import (
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestDefaultPageSize(t *testing.T) {
	if DefaultPageSize != 100 {
		t.Errorf("expected DefaultPageSize to be 100, got %d", DefaultPageSize)
	}
}

func TestPaginate_ShortPage(t *testing.T) {
	objects := []minio.ObjectInfo{{Key: "Docs/.keep"}}

	result := paginate(objects, 2, "Docs/.keep")

	if result.IsTruncated {
		t.Error("a page shorter than maxKeys is not truncated")
	}
	if result.NextContinuationToken != "" {
		t.Errorf("expected no continuation token, got %q", result.NextContinuationToken)
	}
	if len(result.Objects) != 1 {
		t.Errorf("expected 1 object, got %d", len(result.Objects))
	}
}

func TestPaginate_FullPage(t *testing.T) {
	objects := []minio.ObjectInfo{{Key: "Docs/.keep"}, {Key: "Docs/a.pdf"}}

	result := paginate(objects, 2, "Docs/a.pdf")

	if !result.IsTruncated {
		t.Error("a full page is truncated")
	}
	if result.NextContinuationToken != "Docs/a.pdf" {
		t.Errorf("expected continuation from last key, got %q", result.NextContinuationToken)
	}
}

func TestPaginate_Empty(t *testing.T) {
	result := paginate(nil, DefaultPageSize, "")

	if result.IsTruncated || len(result.Objects) != 0 {
		t.Errorf("unexpected result for empty listing: %+v", result)
	}
}
