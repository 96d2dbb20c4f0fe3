package service

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
)

const (
	MinSceneDuration  = 5
	MaxSceneDuration  = 10
	MaxScenes         = 20
	MaxTotalDuration  = 120
	wordsPerSecond    = 2.5
	maxPromptKeywords = 10
	maxFallbackPrompt = 200
	CinematicSuffix   = "cinematic lighting, shallow depth of field, 4k, professional commercial quality"
	defaultTransition = "fade"
)

var ErrPlanInvalid = errors.New("invalid script")

// Script is an incoming video script, either structured (Hook / Scenes / CTA)
// or free text.
type Script struct {
	SourceID string        `json:"source_id"`
	Title    string        `json:"title"`
	Hook     string        `json:"hook"`
	Scenes   []ScriptScene `json:"scenes"`
	CTA      string        `json:"cta"`
	Text     string        `json:"text"`
	MusicURL string        `json:"music_url"`
}

type ScriptScene struct {
	Title        string `json:"title"`
	VisualPrompt string `json:"visual_prompt"`
	Voiceover    string `json:"voiceover"`
	Duration     int    `json:"duration"`
}

func (s Script) structured() bool {
	return s.Hook != "" || s.CTA != "" || len(s.Scenes) > 0
}

// PlannedScene is a scene ready to be persisted.
type PlannedScene struct {
	Number       int
	Title        string
	VisualPrompt string
	Voiceover    string
	Duration     int
	StartOffset  int
}

// PlanScenes turns a script into an ordered, timed, validated scene list.
func PlanScenes(script Script) ([]PlannedScene, error) {
	var drafts []ScriptScene
	if script.structured() {
		drafts = structuredDrafts(script)
	} else {
		drafts = freeTextDrafts(script.Text)
	}

	scenes := make([]PlannedScene, 0, len(drafts))
	offset := 0
	for i, d := range drafts {
		voiceover, visual := extractVisualNotes(d.Voiceover)
		prompt := strings.TrimSpace(d.VisualPrompt)
		if prompt == "" {
			prompt = visual
		}
		if prompt == "" {
			prompt = DeriveVisualPrompt(voiceover)
		}
		duration := d.Duration
		if duration <= 0 {
			duration = EstimateDuration(voiceover)
		}
		duration = clampDuration(duration)
		scenes = append(scenes, PlannedScene{
			Number:       i + 1,
			Title:        strings.TrimSpace(d.Title),
			VisualPrompt: prompt,
			Voiceover:    voiceover,
			Duration:     duration,
			StartOffset:  offset,
		})
		offset += duration
	}

	if err := validatePlan(scenes); err != nil {
		return nil, err
	}
	return scenes, nil
}

func validatePlan(scenes []PlannedScene) error {
	if len(scenes) == 0 {
		return fmt.Errorf("%w: script produced no scenes", ErrPlanInvalid)
	}
	if len(scenes) > MaxScenes {
		return fmt.Errorf("%w: %d scenes exceeds the limit of %d", ErrPlanInvalid, len(scenes), MaxScenes)
	}
	total := 0
	for _, s := range scenes {
		if strings.TrimSpace(s.VisualPrompt) == "" {
			return fmt.Errorf("%w: scene %d has no visual prompt", ErrPlanInvalid, s.Number)
		}
		total += s.Duration
	}
	if total > MaxTotalDuration {
		return fmt.Errorf("%w: total duration %ds exceeds %ds", ErrPlanInvalid, total, MaxTotalDuration)
	}
	return nil
}

func structuredDrafts(s Script) []ScriptScene {
	var out []ScriptScene
	if strings.TrimSpace(s.Hook) != "" {
		out = append(out, ScriptScene{Title: "Hook", Voiceover: s.Hook})
	}
	out = append(out, s.Scenes...)
	if strings.TrimSpace(s.CTA) != "" {
		out = append(out, ScriptScene{Title: "Call to action", Voiceover: s.CTA})
	}
	return out
}

var (
	headerMarker   = regexp.MustCompile(`^\s{0,3}#{1,6}\s+(.*)$`)
	numberedMarker = regexp.MustCompile(`^\s*\d{1,2}[.)]\s+(.*)$`)
	sceneMarker    = regexp.MustCompile(`(?i)^\s*[*_]*\s*scene\s+\d+\s*[*_]*\s*[:.)\-]?\s*[*_]*\s*(.*)$`)
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	visualNote     = regexp.MustCompile(`(?i)\[\s*visual\s*:\s*([^\]]*)\]`)
	spaceRun       = regexp.MustCompile(`\s+`)
)

// freeTextDrafts splits on markdown headers, numbered list items or "Scene N"
// markers; text without any marker is split into paragraphs.
func freeTextDrafts(text string) []ScriptScene {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var (
		out     []ScriptScene
		current *ScriptScene
		body    []string
		marked  bool
	)
	flush := func() {
		if current == nil {
			if joined := strings.TrimSpace(strings.Join(body, " ")); joined != "" {
				out = append(out, ScriptScene{Voiceover: joined})
			}
			body = nil
			return
		}
		current.Voiceover = strings.TrimSpace(strings.Join(body, " "))
		if current.Voiceover == "" {
			current.Voiceover = current.Title
		}
		if current.Voiceover != "" {
			out = append(out, *current)
		}
		current = nil
		body = nil
	}

	for _, line := range lines {
		switch {
		case sceneMarker.MatchString(line):
			flush()
			marked = true
			current = &ScriptScene{}
			if rest := strings.TrimSpace(sceneMarker.FindStringSubmatch(line)[1]); rest != "" {
				body = append(body, rest)
			}
		case headerMarker.MatchString(line):
			flush()
			marked = true
			current = &ScriptScene{Title: strings.TrimSpace(headerMarker.FindStringSubmatch(line)[1])}
		case numberedMarker.MatchString(line):
			flush()
			marked = true
			current = &ScriptScene{}
			body = append(body, strings.TrimSpace(numberedMarker.FindStringSubmatch(line)[1]))
		default:
			if strings.TrimSpace(line) != "" {
				body = append(body, strings.TrimSpace(line))
			}
		}
	}
	flush()
	if marked {
		return out
	}

	out = out[:0]
	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(spaceRun.ReplaceAllString(para, " "))
		if para != "" {
			out = append(out, ScriptScene{Voiceover: para})
		}
	}
	return out
}

// extractVisualNotes lifts inline [VISUAL: ...] notes out of narration.
func extractVisualNotes(text string) (voiceover, visual string) {
	var notes []string
	for _, m := range visualNote.FindAllStringSubmatch(text, -1) {
		if n := strings.TrimSpace(m[1]); n != "" {
			notes = append(notes, n)
		}
	}
	voiceover = visualNote.ReplaceAllString(text, " ")
	voiceover = strings.TrimSpace(spaceRun.ReplaceAllString(voiceover, " "))
	return voiceover, strings.Join(notes, ", ")
}

// EstimateDuration converts narration length to seconds at 2.5 words/second,
// clamped to the scene bounds.
func EstimateDuration(voiceover string) int {
	words := len(strings.Fields(voiceover))
	return clampDuration(int(math.Ceil(float64(words) / wordsPerSecond)))
}

func clampDuration(d int) int {
	if d < MinSceneDuration {
		return MinSceneDuration
	}
	if d > MaxSceneDuration {
		return MaxSceneDuration
	}
	return d
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all am an and any are as at be because
		been before being below between both but by can could did do does doing down during each few for from
		further had has have having he her here hers herself him himself his how i if in into is it its itself
		just let me more most my myself no nor not now of off on once only or other our ours ourselves out over
		own same she should so some such than that the their theirs them themselves then there these they this
		those through to too under until up very was we were what when where which while who whom why will with
		would you your yours yourself yourselves get got go going gonna want wanna really thing things make
		made like also every even still ever here's that's it's don't can't won't you're we're they're i'm
		let's what's there's`) {
		stopWords[w] = struct{}{}
	}
}

// DeriveVisualPrompt builds a prompt from narration by keeping up to ten
// content keywords plus a fixed cinematic suffix. It is a lossy heuristic: the
// result is well formed, not necessarily a good shot description. When no
// keyword survives it falls back to the truncated narration.
func DeriveVisualPrompt(voiceover string) string {
	text := strings.TrimSpace(voiceover)
	if text == "" {
		return ""
	}
	seen := make(map[string]struct{})
	var keywords []string
	for _, raw := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}) {
		w := strings.Trim(raw, "'")
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
		if len(keywords) == maxPromptKeywords {
			break
		}
	}
	if len(keywords) == 0 {
		return truncateRunes(text, maxFallbackPrompt) + ", " + CinematicSuffix
	}
	return strings.Join(keywords, ", ") + ", " + CinematicSuffix
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
