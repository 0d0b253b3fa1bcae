package export

// SelectHighlights trims every excerpt to perClipSeconds and keeps a
// chronological prefix whose total duration first reaches targetSeconds.
// The excerpt that crosses the target is kept whole.
func SelectHighlights(excerpts []Excerpt, targetSeconds, perClipSeconds float64) []Excerpt {
	if len(excerpts) == 0 || targetSeconds <= 0 {
		return []Excerpt{}
	}
	selected := make([]Excerpt, 0, len(excerpts))
	var total float64
	for _, e := range excerpts {
		if perClipSeconds > 0 && e.DurationSeconds > perClipSeconds {
			e.DurationSeconds = perClipSeconds
			e.ClipEnd = e.ClipStart.Add(seconds(perClipSeconds))
		}
		selected = append(selected, e)
		total += e.DurationSeconds
		if total >= targetSeconds {
			break
		}
	}
	return selected
}
