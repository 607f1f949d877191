package report

import "github.com/fieldscope/vistoria/model"

// Band is one step of the five-step score scale shared by the aggregate
// gauge and the per-question markers.
type Band struct {
	R, G, B int
	Label   string
}

var bands = []Band{
	{217, 48, 37, "Péssimo"},
	{243, 112, 33, "Ruim"},
	{244, 180, 0, "Regular"},
	{140, 198, 63, "Bom"},
	{46, 164, 79, "Ótimo"},
}

// ScoreBand maps a 1-5 score onto its color band and qualitative label.
func ScoreBand(score float64) Band {
	switch {
	case score >= 4.5:
		return bands[4]
	case score >= 3.5:
		return bands[3]
	case score >= 2.5:
		return bands[2]
	case score >= 1.5:
		return bands[1]
	default:
		return bands[0]
	}
}

// AggregateScore is the arithmetic mean of all non-null per-answer scores.
// ok is false when nothing was scored.
func AggregateScore(answers []model.Answer) (score float64, ok bool) {
	var sum, n float64
	for _, a := range answers {
		if a.Score != nil {
			sum += float64(*a.Score)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}
