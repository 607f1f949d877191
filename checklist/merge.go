package checklist

import "github.com/fieldscope/vistoria/model"

// mergeAnswers reconciles the freshly normalized answer set against the
// previous draft's rows. Values always come from the new set; photo URLs the
// client did not resend (and did not replace with a new upload) are carried
// forward from the old row so in-progress uploads are never silently lost.
// On multi-photo questions stored URLs and new ones are unioned, so an upload
// without the previous list resent still appends instead of replacing.
// Old answers for questions absent from the new set survive only through
// their photos: the row is recreated holding the stored URLs and nothing
// else, since the value slots are the client's to restate on every save.
func mergeAnswers(oldAnswers, newAnswers []model.Answer, multiPhoto map[string]bool) []model.Answer {
	oldByQuestion := make(map[string]model.Answer, len(oldAnswers))
	for _, a := range oldAnswers {
		oldByQuestion[a.QuestionID] = a
	}

	merged := make([]model.Answer, 0, len(newAnswers))
	seen := make(map[string]bool, len(newAnswers))
	for _, a := range newAnswers {
		if prev, ok := oldByQuestion[a.QuestionID]; ok {
			switch {
			case len(a.PhotoURLs) == 0:
				a.PhotoURLs = prev.PhotoURLs
			case multiPhoto[a.QuestionID]:
				a.PhotoURLs = unionURLs(prev.PhotoURLs, a.PhotoURLs)
			}
		}
		merged = append(merged, a)
		seen[a.QuestionID] = true
	}

	for _, a := range oldAnswers {
		if !seen[a.QuestionID] && len(a.PhotoURLs) > 0 {
			merged = append(merged, model.Answer{
				QuestionID:   a.QuestionID,
				QuestionType: a.QuestionType,
				PhotoURLs:    a.PhotoURLs,
			})
		}
	}
	return merged
}

// unionURLs keeps stored URLs first and appends new ones not already present,
// so re-merging the same sets is a no-op.
func unionURLs(stored, incoming []string) []string {
	seen := make(map[string]bool, len(stored))
	urls := make([]string, 0, len(stored)+len(incoming))
	for _, u := range stored {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	for _, u := range incoming {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	return urls
}
