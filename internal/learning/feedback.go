package learning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/program-extract/internal/model"
)

// correctionConfidence is the confidence given to a pattern seeded from a
// human correction.
const correctionConfidence = 0.9

// ProvideFeedback applies a reviewer verdict to the history entry key. The
// verdict replaces the attempt's recorded outcome: a rejected success moves
// to the failure side of the strategy counters and out of the domain's
// successful strategies, and an accepted failure moves the other way.
// Attempts are unchanged, and repeating a verdict changes nothing. A
// supplied corrected value on an incorrect verdict is analysed, stored as
// the key's correction and seeded into the pattern engine. The returned
// record is nil unless a correction was stored.
func (e *Engine) ProvideFeedback(ctx context.Context, key string, isCorrect bool, corrected any) (*model.CorrectionRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i := range e.state.History {
		if e.state.History[i].Key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, eris.Wrapf(ErrHistoryNotFound, "key %q", key)
	}

	now := e.now()
	h := &e.state.History[idx]
	if e.succeeded(h) != isCorrect {
		e.reclassify(h, isCorrect)
	}
	h.Verified = true
	h.Feedback = &model.Feedback{IsCorrect: isCorrect, CorrectedValue: corrected, At: now}
	e.dropCorrection(h.Field, h.Key)

	var rec *model.CorrectionRecord
	if !isCorrect && corrected != nil {
		rec = &model.CorrectionRecord{
			HistoryKey: h.Key,
			Field:      h.Field,
			Original:   h.Value,
			Corrected:  corrected,
			Analysis:   AnalyzeCorrection(h.Value, corrected),
			Context:    h.Context,
			Domain:     h.Domain,
			CreatedAt:  now,
		}
		if e.patterns != nil {
			for _, s := range toStrings(corrected) {
				p := e.patterns.Learn(h.Field, s, h.Context, correctionConfidence)
				if rec.SuggestedPattern == "" {
					rec.SuggestedPattern = p.String()
				}
			}
		}
		e.state.Corrections[h.Field] = append(e.state.Corrections[h.Field], *rec)
		zap.L().Info("learning: correction recorded",
			zap.String("field", h.Field),
			zap.String("domain", h.Domain),
			zap.String("type", rec.Analysis.Type),
		)
	}

	e.rankFieldStrategies(h.Field)
	e.persist(ctx)
	return rec, nil
}

// succeeded is the entry's current outcome: the last verdict if there is
// one, otherwise the confidence test applied when it was recorded.
func (e *Engine) succeeded(h *model.HistoryEntry) bool {
	if h.Feedback != nil {
		return h.Feedback.IsCorrect
	}
	return h.Confidence >= e.cfg.SuccessConfidence
}

// reclassify moves one attempt between the success and failure sides of
// the strategy counters and the domain profile.
func (e *Engine) reclassify(h *model.HistoryEntry, success bool) {
	perf := e.performance(h.Field, h.Strategy)
	if success {
		perf.Successes++
		perf.Failures = max(perf.Failures-1, 0)
	} else {
		perf.Failures++
		perf.Successes = max(perf.Successes-1, 0)
	}

	prof, ok := e.state.SiteProfiles[h.Domain]
	if !ok {
		return
	}
	st := &prof.ExtractionStats
	k := model.PerformanceKey(h.Field, h.Strategy)
	ss := prof.SuccessfulStrategies[k]
	if success {
		st.Successful = min(st.Successful+1, st.Total)
		if ss == nil {
			ss = &model.StrategyStat{Field: h.Field, Strategy: h.Strategy}
			prof.SuccessfulStrategies[k] = ss
		}
		ss.Count++
		ss.AvgConfidence += (h.Confidence - ss.AvgConfidence) / float64(ss.Count)
		return
	}
	st.Successful = max(st.Successful-1, 0)
	if ss == nil {
		return
	}
	if ss.Count <= 1 {
		delete(prof.SuccessfulStrategies, k)
		return
	}
	ss.AvgConfidence = (ss.AvgConfidence*float64(ss.Count) - h.Confidence) / float64(ss.Count-1)
	ss.Count--
}

// dropCorrection removes the correction stored for a history key.
func (e *Engine) dropCorrection(field, key string) {
	list := e.state.Corrections[field]
	kept := list[:0]
	for _, c := range list {
		if c.HistoryKey != key {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(e.state.Corrections, field)
		return
	}
	e.state.Corrections[field] = kept
}

// AnalyzeCorrection classifies how corrected differs from original.
func AnalyzeCorrection(original, corrected any) model.CorrectionAnalysis {
	if isEmpty(original) {
		if isEmpty(corrected) {
			return model.CorrectionAnalysis{Type: model.CorrectionUnknown, Similarity: 1}
		}
		return model.CorrectionAnalysis{Type: model.CorrectionMissed}
	}
	if isEmpty(corrected) {
		return model.CorrectionAnalysis{Type: model.CorrectionFalsePositive}
	}

	os, oList := asList(original)
	cs, cList := asList(corrected)
	if oList || cList {
		return arrayDifference(os, cs)
	}
	if len(os) != 1 || len(cs) != 1 {
		return model.CorrectionAnalysis{Type: model.CorrectionUnknown}
	}
	return stringDifference(os[0], cs[0])
}

func stringDifference(a, b string) model.CorrectionAnalysis {
	if a == b {
		return model.CorrectionAnalysis{Type: model.CorrectionUnknown, Similarity: 1}
	}
	fold := cases.Fold()
	fa, fb := fold.String(strings.TrimSpace(a)), fold.String(strings.TrimSpace(b))
	sim := similarity(a, b)
	switch {
	case fa == fb:
		return model.CorrectionAnalysis{Type: model.CorrectionCaseDifference, Similarity: sim}
	case strings.Contains(fa, fb) || strings.Contains(fb, fa):
		return model.CorrectionAnalysis{Type: model.CorrectionPartialMatch, Similarity: sim}
	}
	return model.CorrectionAnalysis{Type: model.CorrectionDifferentValue, Similarity: sim}
}

// similarity is 1 - edit distance over the longer rune length.
func similarity(a, b string) float64 {
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	return 1 - float64(levenshtein.Distance(a, b, nil))/float64(n)
}

func arrayDifference(original, corrected []string) model.CorrectionAnalysis {
	fold := cases.Fold()
	have := make(map[string]bool, len(original))
	for _, s := range original {
		have[fold.String(s)] = true
	}
	want := make(map[string]bool, len(corrected))
	for _, s := range corrected {
		want[fold.String(s)] = true
	}

	a := model.CorrectionAnalysis{Type: model.CorrectionArrayDifference}
	for _, s := range corrected {
		if !have[fold.String(s)] {
			a.Added = append(a.Added, s)
		}
	}
	for _, s := range original {
		if !want[fold.String(s)] {
			a.Removed = append(a.Removed, s)
		}
	}
	sort.Strings(a.Added)
	sort.Strings(a.Removed)
	union := len(have)
	for k := range want {
		if !have[k] {
			union++
		}
	}
	if union > 0 {
		a.Similarity = float64(union-len(a.Added)-len(a.Removed)) / float64(union)
	}
	return a
}

// asList flattens v into strings and reports whether v was a list.
func asList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, fmt.Sprint(x))
		}
		return out, true
	case string:
		return []string{t}, false
	}
	return []string{fmt.Sprint(v)}, false
}

func toStrings(v any) []string {
	list, _ := asList(v)
	out := list[:0:0]
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
