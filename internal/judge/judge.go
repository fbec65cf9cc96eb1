// Package judge asks a language model whether a wish is worthy.
package judge

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	VerdictWorthy   = "WORTHY"
	VerdictUnworthy = "UNWORTHY"

	CloudedMessage = "The Oracle's wisdom is clouded. Try again, mortal."
	DefaultMessage = "The Oracle has spoken."
	cloudedScore   = 30
)

// Judgment is the model's reading of a wish.
type Judgment struct {
	Verdict string `json:"verdict"`
	Score   int    `json:"score"`
	Message string `json:"message"`
	// RawScore is the number the model returned before rounding.
	RawScore float64 `json:"-"`
	// Raw is the unparsed model output.
	Raw string `json:"-"`
	// Parsed is false when Raw held no usable JSON and the fallback was used.
	Parsed bool `json:"-"`
}

// Judge scores a wish given the texts of recent winners.
type Judge interface {
	Judge(ctx context.Context, wish string, recentWinners []string) (Judgment, error)
	Name() string
}

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// ParseJudgment extracts the JSON verdict embedded in model output. When no
// valid object is found it returns the clouded fallback.
func ParseJudgment(content string) Judgment {
	fallback := Judgment{Verdict: VerdictUnworthy, Score: cloudedScore, Message: CloudedMessage, Raw: content}

	match := jsonObject.FindString(content)
	if match == "" || !gjson.Valid(match) {
		return fallback
	}

	res := gjson.Parse(match)
	if !res.IsObject() {
		return fallback
	}

	j := Judgment{Raw: content, Parsed: true}
	j.Verdict = strings.ToUpper(strings.TrimSpace(res.Get("verdict").String()))
	if score := res.Get("score"); score.Type == gjson.Number {
		j.RawScore = score.Float()
		j.Score = int(math.Round(j.RawScore))
	}
	j.Message = res.Get("message").String()
	return j
}

// ModelScore is the score as the model reported it.
func (j Judgment) ModelScore() float64 {
	if j.RawScore != 0 {
		return j.RawScore
	}
	return float64(j.Score)
}

// Decide applies the worthiness threshold to a judgment. A WORTHY verdict with
// a score below threshold is downgraded.
func Decide(j Judgment, threshold int) string {
	if j.Verdict == VerdictWorthy && j.Score >= threshold {
		return VerdictWorthy
	}
	return VerdictUnworthy
}

// UserPrompt is the message sent for a wish.
func UserPrompt(wish string) string {
	return `Judge this wish: "` + wish + `"`
}

// Func adapts a function to the Judge interface.
type Func func(ctx context.Context, wish string, recentWinners []string) (Judgment, error)

func (f Func) Judge(ctx context.Context, wish string, recentWinners []string) (Judgment, error) {
	return f(ctx, wish, recentWinners)
}

func (f Func) Name() string { return "func" }
