package service

import (
	"math"
	"testing"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
)

func TestWeightedAverageEmpty(t *testing.T) {
	got := weightedAverage(nil)
	if got.OK {
		t.Error("Expected OK to be false when no trusted reviews exist")
	}
	if got.ReviewerCount != 0 {
		t.Errorf("Expected reviewer count 0, got %d", got.ReviewerCount)
	}
}

func TestWeightedAverageSingle(t *testing.T) {
	got := weightedAverage([]repository.ReviewWeight{{Rating: 4, Weight: 3}})
	if !got.OK {
		t.Fatal("Expected OK to be true")
	}
	if got.WeightedAverage != 4 {
		t.Errorf("Expected average 4, got %f", got.WeightedAverage)
	}
	if got.ReviewerCount != 1 {
		t.Errorf("Expected reviewer count 1, got %d", got.ReviewerCount)
	}
}

func TestWeightedAverageMixedWeights(t *testing.T) {
	// (5*1 + 1*4) / (1+4) = 9/5 = 1.8
	got := weightedAverage([]repository.ReviewWeight{
		{Rating: 5, Weight: 1},
		{Rating: 1, Weight: 4},
	})
	if !got.OK {
		t.Fatal("Expected OK to be true")
	}
	if math.Abs(got.WeightedAverage-1.8) > 1e-9 {
		t.Errorf("Expected average 1.8, got %f", got.WeightedAverage)
	}
	if got.ReviewerCount != 2 {
		t.Errorf("Expected reviewer count 2, got %d", got.ReviewerCount)
	}
}

func TestWeightedAverageEqualWeights(t *testing.T) {
	got := weightedAverage([]repository.ReviewWeight{
		{Rating: 2, Weight: 2},
		{Rating: 4, Weight: 2},
	})
	if math.Abs(got.WeightedAverage-3) > 1e-9 {
		t.Errorf("Expected average 3, got %f", got.WeightedAverage)
	}
}
