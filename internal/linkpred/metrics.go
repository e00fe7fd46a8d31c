package linkpred

import (
	"cmp"
	"fmt"
	"slices"
)

type scored struct {
	label float64
	score float64
}

func prepare(labels, scores []float64) ([]scored, int, int, error) {
	if len(labels) != len(scores) {
		return nil, 0, 0, fmt.Errorf("%d labels for %d scores", len(labels), len(scores))
	}
	items := make([]scored, len(labels))
	var pos int
	for i := range labels {
		items[i] = scored{label: labels[i], score: scores[i]}
		if labels[i] == 1 {
			pos++
		}
	}
	neg := len(labels) - pos
	if pos == 0 || neg == 0 {
		return nil, 0, 0, ErrEmptyClass
	}
	slices.SortStableFunc(items, func(a, b scored) int { return cmp.Compare(b.score, a.score) })
	return items, pos, neg, nil
}

// ROCAUC returns the area under the ROC curve. Tied scores form one
// threshold, so a positive tied with a negative counts one half.
func ROCAUC(labels, scores []float64) (float64, error) {
	items, pos, neg, err := prepare(labels, scores)
	if err != nil {
		return 0, err
	}

	var auc, tp, fp, prevTP, prevFP float64
	for i := 0; i < len(items); {
		j := i
		for j < len(items) && items[j].score == items[i].score {
			if items[j].label == 1 {
				tp++
			} else {
				fp++
			}
			j++
		}
		auc += (fp - prevFP) * (tp + prevTP) / 2
		prevTP, prevFP = tp, fp
		i = j
	}
	return auc / (float64(pos) * float64(neg)), nil
}

// AveragePrecision sums precision at each distinct score threshold weighted
// by the recall gained there.
func AveragePrecision(labels, scores []float64) (float64, error) {
	items, pos, _, err := prepare(labels, scores)
	if err != nil {
		return 0, err
	}

	var ap, tp, fp, prevRecall float64
	for i := 0; i < len(items); {
		j := i
		for j < len(items) && items[j].score == items[i].score {
			if items[j].label == 1 {
				tp++
			} else {
				fp++
			}
			j++
		}
		recall := tp / float64(pos)
		ap += (recall - prevRecall) * tp / (tp + fp)
		prevRecall = recall
		i = j
	}
	return ap, nil
}
