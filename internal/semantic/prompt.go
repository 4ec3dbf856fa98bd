package semantic

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/signalnine/gradecheck/internal/evidence"
	"github.com/signalnine/gradecheck/internal/rubric"
	"github.com/signalnine/gradecheck/internal/suites"
)

// SystemPrompt frames every scoring call.
const SystemPrompt = "You are an expert full-stack development instructor evaluating student projects. Provide fair, constructive feedback with specific examples."

// Band is one performance level and its point range.
type Band struct {
	Level string
	Min   float64
	Max   float64
}

// Bands scales the four performance levels to maxPoints. For 10 points
// they are Poor 1-4, Fair 5-6, Good 7-8 and Excellent 9-10.
func Bands(maxPoints float64) []Band {
	return []Band{
		{"Poor", MinScore(maxPoints), round1(maxPoints * 0.4)},
		{"Fair", round1(maxPoints * 0.5), round1(maxPoints * 0.6)},
		{"Good", round1(maxPoints * 0.7), round1(maxPoints * 0.8)},
		{"Excellent", round1(maxPoints * 0.9), maxPoints},
	}
}

// MinScore is the lowest score a verdict may carry.
func MinScore(maxPoints float64) float64 {
	return math.Min(1, maxPoints)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func pct(v float64) string {
	return num(math.Round(v * 100))
}

// BuildPrompt renders the scoring prompt for one criterion. tally is the
// unit test aggregate and is only used for hybrid criteria.
func BuildPrompt(c rubric.Criterion, b evidence.Bundle, tally *suites.Tally) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Evaluate this student project for the following rubric criterion.\n\n")
	fmt.Fprintf(&sb, "**Criterion**: %s\n**ID**: %s\n**Max Points**: %s\n**Evaluation Method**: %s\n\n",
		c.Title, c.ID, num(c.MaxPoints), c.Method.Label())

	sb.WriteString("## Scoring Levels\n\n| Level | Points | Description |\n|-------|--------|-------------|\n")
	for _, band := range Bands(c.MaxPoints) {
		fmt.Fprintf(&sb, "| %s | %s-%s | %s |\n", band.Level, num(band.Min), num(band.Max), levelDescription(c, band.Level))
	}

	sb.WriteString("\n## Evaluation Instructions\n\n")
	if c.Instructions != "" {
		sb.WriteString(c.Instructions)
	} else {
		sb.WriteString("Assess how completely and cleanly the project implements this criterion.")
	}
	sb.WriteString("\n")

	if c.Method == rubric.MethodHybrid {
		uw, sw := c.Weights()
		sb.WriteString("\n## Unit Test Results\n\n")
		if tally != nil && tally.Evaluated() {
			fmt.Fprintf(&sb, "- Tests passed: %s/%s\n- Tests failed: %s\n- Unit test score: %s/%s\n",
				num(round1(tally.Passed)), num(round1(tally.Total)), num(round1(tally.Failed)), num(tally.Score), num(c.MaxPoints))
		} else {
			sb.WriteString("- No unit tests ran for this criterion.\n")
		}
		fmt.Fprintf(&sb, "\nThe final score weights unit tests at %s%% and your evaluation at %s%%. Score the code quality and implementation on its own merits.\n",
			pct(uw), pct(sw))
	}

	sb.WriteString("\n## Code Analysis\n\n")
	sb.WriteString(strings.TrimRight(b.Text, "\n"))
	sb.WriteString("\n")

	fmt.Fprintf(&sb, `
## Response Format

Respond with ONLY a JSON object in this exact shape:
{
  "score": <number between %s and %s>,
  "level_achieved": "<Poor|Fair|Good|Excellent>",
  "justification": "<2-3 sentences explaining the score>",
  "strengths": ["<specific strength>"],
  "weaknesses": ["<specific weakness>"],
  "improvements": ["<actionable suggestion>"],
  "files_analyzed": ["<path>"]
}
`, num(MinScore(c.MaxPoints)), num(c.MaxPoints))
	return sb.String()
}

func levelDescription(c rubric.Criterion, level string) string {
	if d, ok := c.Levels[level]; ok {
		return d
	}
	keys := make([]string, 0, len(c.Levels))
	for k := range c.Levels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, level) {
			return c.Levels[k]
		}
	}
	return "-"
}
