package service

import (
	"testing"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

func answer(id int64, parent *int64) models.Answer {
	return models.Answer{ID: id, QuestionID: 1, Content: "a", Author: "student1", ParentAnswerID: parent}
}

func ptr(v int64) *int64 { return &v }

func TestBuildAnswerTreeFlat(t *testing.T) {
	roots := buildAnswerTree([]models.Answer{
		answer(1, nil),
		answer(2, nil),
		answer(3, nil),
	})

	if len(roots) != 3 {
		t.Fatalf("Expected 3 roots, got %d", len(roots))
	}
	for _, root := range roots {
		if len(root.Replies) != 0 {
			t.Errorf("Expected answer %d to have no replies, got %d", root.ID, len(root.Replies))
		}
	}
}

func TestBuildAnswerTreeNested(t *testing.T) {
	roots := buildAnswerTree([]models.Answer{
		answer(1, nil),
		answer(2, ptr(1)),
		answer(3, ptr(1)),
		answer(4, ptr(2)),
	})

	if len(roots) != 1 {
		t.Fatalf("Expected 1 root, got %d", len(roots))
	}
	root := roots[0]
	if root.ID != 1 {
		t.Fatalf("Expected root id 1, got %d", root.ID)
	}
	if len(root.Replies) != 2 {
		t.Fatalf("Expected 2 direct replies, got %d", len(root.Replies))
	}

	var reply2 *models.AnswerNode
	for _, r := range root.Replies {
		if r.ID == 2 {
			reply2 = r
		}
	}
	if reply2 == nil {
		t.Fatal("Expected answer 2 among the root's replies")
	}
	if len(reply2.Replies) != 1 || reply2.Replies[0].ID != 4 {
		t.Errorf("Expected answer 4 nested under answer 2, got %+v", reply2.Replies)
	}
}

func TestBuildAnswerTreeOrphanBecomesRoot(t *testing.T) {
	roots := buildAnswerTree([]models.Answer{
		answer(1, nil),
		answer(2, ptr(99)),
	})

	if len(roots) != 2 {
		t.Fatalf("Expected orphan to be promoted to a root, got %d roots", len(roots))
	}
}

func TestBuildAnswerTreeEmpty(t *testing.T) {
	roots := buildAnswerTree(nil)
	if len(roots) != 0 {
		t.Errorf("Expected no roots for empty input, got %d", len(roots))
	}
}
