package signals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/signalnine/gradecheck/internal/suites"
	"github.com/signalnine/gradecheck/internal/timeout"
)

const (
	DefaultProbeTimeout = 10 * time.Second
	probeUserAgent      = "Mozilla/5.0 (compatible; GradingBot/1.0)"
)

// DefaultKnownHosts are the static hosting services a deployment URL is
// expected to point at.
var DefaultKnownHosts = []string{
	"netlify.app", "vercel.app", "github.io", "herokuapp.com", "render.com", "railway.app", "surge.sh",
}

var urlPattern = regexp.MustCompile(`^https?://.+`)

const (
	StatusAccessible = "accessible"
	StatusFailed     = "failed"
	StatusMissing    = "missing"
)

type Deployment struct {
	URL         string `json:"deployment_url"`
	Status      string `json:"deployment_status"`
	HTTPStatus  int    `json:"http_status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// ReadDeploymentURL reads the first line of a DEPLOYMENT_URL.txt file.
func ReadDeploymentURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	return strings.TrimSpace(line), nil
}

// Prober checks that a deployment URL is well-formed and reachable.
type Prober struct {
	Client     *http.Client
	Timeout    time.Duration
	KnownHosts []string
}

func NewProber(timeout time.Duration, knownHosts []string) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if len(knownHosts) == 0 {
		knownHosts = DefaultKnownHosts
	}
	return &Prober{Client: &http.Client{}, Timeout: timeout, KnownHosts: knownHosts}
}

// Probe scores url out of maxPoints. An empty url scores zero.
func (p *Prober) Probe(ctx context.Context, url string, maxPoints float64) *Signal {
	if url == "" {
		return &Signal{
			Source:        SourceDeployment,
			Score:         0,
			MaxPoints:     maxPoints,
			Level:         levelFor(0, maxPoints),
			Justification: "No deployment URL provided",
			Checks:        []Check{{Name: "deployment URL present", Passed: false}},
			Deployment:    &Deployment{Status: StatusMissing},
		}
	}

	d := &Deployment{URL: url, Status: StatusFailed}
	lower := strings.ToLower(url)
	checks := []Check{
		{Name: "deployment URL present", Passed: true},
		{Name: "valid URL format", Passed: urlPattern.MatchString(url)},
		{Name: "uses HTTPS", Passed: strings.HasPrefix(lower, "https://")},
		{Name: "known hosting service", Passed: p.knownHost(lower)},
	}

	reach := Check{Name: "responds with HTTP 200"}
	html := Check{Name: "serves HTML"}
	status, contentType, err := p.fetch(ctx, url)
	if err != nil {
		reach.Detail = err.Error()
		html.Detail = "not fetched"
	} else {
		d.HTTPStatus = status
		d.ContentType = contentType
		reach.Passed = status == http.StatusOK
		reach.Detail = fmt.Sprintf("HTTP %d", status)
		html.Passed = strings.Contains(strings.ToLower(contentType), "text/html")
		html.Detail = contentType
		if reach.Passed {
			d.Status = StatusAccessible
		}
	}
	checks = append(checks, reach, html)

	s := fromChecks(SourceDeployment, "Deployment", checks, maxPoints)
	s.Deployment = d
	return s
}

func (p *Prober) knownHost(lowerURL string) bool {
	for _, h := range p.KnownHosts {
		if strings.Contains(lowerURL, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

func (p *Prober) fetch(ctx context.Context, url string) (int, string, error) {
	if !urlPattern.MatchString(url) {
		return 0, "", errors.New("not an http(s) URL")
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", probeUserAgent)
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", timeout.Check(ctx, "deployment probe", p.Timeout, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

type deploymentTestFile struct {
	URL    string `json:"deployment_url"`
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`
	Total  int    `json:"total"`
}

// LoadDeploymentTest reads a precomputed deployment-test.json and scores
// its pass counts out of maxPoints.
func LoadDeploymentTest(path string, maxPoints float64) (*Signal, error) {
	var f deploymentTestFile
	if err := readJSON(path, &f); err != nil {
		return nil, err
	}
	total := f.Total
	if total == 0 {
		total = f.Passed + f.Failed
	}
	if total == 0 {
		return nil, fmt.Errorf("%s: no deployment checks recorded", path)
	}
	score := suites.CurveScore(float64(f.Passed), float64(total), maxPoints)
	s := &Signal{
		Source:        SourceDeployment,
		Score:         score,
		MaxPoints:     maxPoints,
		Level:         levelFor(score, maxPoints),
		Justification: fmt.Sprintf("Deployment: %d/%d checks passed", f.Passed, total),
	}
	status := StatusFailed
	if f.Passed > 0 {
		status = StatusAccessible
	}
	s.Deployment = &Deployment{URL: f.URL, Status: status}
	return s, nil
}
