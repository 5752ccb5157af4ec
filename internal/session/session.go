// Package session wraps the Storage Kernel's session persistence with
// session-id detection and the heatmap query.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentmem/agentmem/internal/store"
)

// Strategy selects how DetectID derives a session id from the environment.
type Strategy string

const (
	StrategyGitDirectory Strategy = "git-directory"
	StrategyManual       Strategy = "manual"
	StrategyHash         Strategy = "hash"
)

// Detector derives a session id from the working directory (or an explicit
// manual override). The git-directory id is cached by cwd; the hash
// strategy shells out to git on every call and is not cached.
type Detector struct {
	Strategy Strategy
	ManualID string
	Prefix   string // default "agentmem-"

	cacheDir string
	cacheID  string
}

// NewDetector builds a Detector for strategy.
func NewDetector(strategy Strategy) *Detector {
	return &Detector{Strategy: strategy, Prefix: "agentmem-"}
}

// DetectID returns the session id for the current process's working
// directory, per the configured strategy.
func (d *Detector) DetectID() string {
	switch d.Strategy {
	case StrategyManual:
		if d.ManualID != "" {
			return d.ManualID
		}
		return d.detectGitDirectory()
	case StrategyHash:
		return d.detectGitHash()
	default:
		return d.detectGitDirectory()
	}
}

func (d *Detector) detectGitDirectory() string {
	cwd, _ := os.Getwd()
	if d.cacheDir == cwd && d.cacheID != "" {
		return d.cacheID
	}

	dirName := filepath.Base(cwd)
	if root := findGitRoot(cwd); root != "" {
		dirName = filepath.Base(root)
	}

	d.cacheDir = cwd
	d.cacheID = d.Prefix + sanitizeDirectoryName(dirName)
	return d.cacheID
}

func (d *Detector) detectGitHash() string {
	cwd, _ := os.Getwd()
	gitRoot := findGitRoot(cwd)
	if gitRoot == "" {
		return d.detectGitDirectory()
	}

	cmd := exec.Command("git", "-C", gitRoot, "config", "--get", "remote.origin.url")
	output, err := cmd.Output()
	if err != nil {
		return d.detectGitDirectory()
	}

	remoteURL := strings.TrimSpace(string(output))
	if remoteURL == "" {
		return d.detectGitDirectory()
	}

	hash := sha256.Sum256([]byte(remoteURL))
	return d.Prefix + hex.EncodeToString(hash[:8])
}

func findGitRoot(startDir string) string {
	dir := startDir
	for {
		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func sanitizeDirectoryName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	return strings.ToLower(b.String())
}

// AgentType enumerates the recognized calling contexts.
type AgentType string

const (
	AgentClaudeDesktop AgentType = "claude-desktop"
	AgentClaudeCode    AgentType = "claude-code"
	AgentAPI           AgentType = "api"
	AgentUnknown       AgentType = "unknown"
)

// DetectAgentType inspects well-known environment variables to classify
// the calling context.
func DetectAgentType() AgentType {
	switch {
	case os.Getenv("MCP_SERVER") != "":
		return AgentClaudeDesktop
	case os.Getenv("CLAUDE_CODE") != "":
		return AgentClaudeCode
	case os.Getenv("AGENTMEM_API") != "":
		return AgentAPI
	default:
		return AgentUnknown
	}
}

// Manager layers session-id detection, injected-id dedup, and the heatmap
// query on top of store.Sessions persistence.
type Manager struct {
	sessions *store.Sessions
	objects  *store.Objects
	detector *Detector
}

// NewManager builds a Manager backed by db.
func NewManager(db *store.DB, detector *Detector) *Manager {
	if detector == nil {
		detector = NewDetector(StrategyGitDirectory)
	}
	return &Manager{
		sessions: store.NewSessions(db),
		objects:  store.NewObjects(db),
		detector: detector,
	}
}

// Start begins a session, detecting its id unless overrideID is set.
func (m *Manager) Start(overrideID, workingDirectory string) (*store.Session, error) {
	id := overrideID
	if id == "" {
		id = m.detector.DetectID()
	}
	return m.sessions.Start(&store.Session{ID: id, WorkingDirectory: workingDirectory})
}

// End closes a session.
func (m *Manager) End(id string) error {
	return m.sessions.End(id)
}

// Get fetches a session by id.
func (m *Manager) Get(id string) (*store.Session, error) {
	return m.sessions.Get(id)
}

// RecordError increments a session's error_count, feeding Progressive
// Disclosure's error_burst escalation signal.
func (m *Manager) RecordError(id string) error {
	return m.sessions.RecordError(id)
}

// MarkInjected records ids as already disclosed this session, so a
// subsequent pack can dedupe against them. Existing injected ids are
// preserved; new ones are appended without duplicates.
func (m *Manager) MarkInjected(id string, newIDs []string) error {
	sess, err := m.sessions.Get(id)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, existing := range sess.InjectedMemoryIDs {
		seen[existing] = true
	}
	merged := append([]string{}, sess.InjectedMemoryIDs...)
	for _, n := range newIDs {
		if !seen[n] {
			merged = append(merged, n)
			seen[n] = true
		}
	}
	return m.sessions.SetDisclosure(id, sess.DisclosureLevel, sess.LastTopic, merged)
}

// FilterUninjected removes ids already present in sess.InjectedMemoryIDs.
func FilterUninjected(sess *store.Session, ids []string) []string {
	injected := map[string]bool{}
	for _, id := range sess.InjectedMemoryIDs {
		injected[id] = true
	}
	var out []string
	for _, id := range ids {
		if !injected[id] {
			out = append(out, id)
		}
	}
	return out
}

// Heatmap returns the n most-accessed active memory objects, with
// last_accessed as the tiebreak. Access counts are lifetime totals; no time
// window is applied.
func (m *Manager) Heatmap(n int) ([]*store.MemoryObject, error) {
	objs, err := m.objects.List(store.ObjectFilter{Status: store.StatusActive})
	if err != nil {
		return nil, err
	}
	sort.Slice(objs, func(i, j int) bool {
		if objs[i].AccessCount != objs[j].AccessCount {
			return objs[i].AccessCount > objs[j].AccessCount
		}
		return objs[i].LastAccessed.After(objs[j].LastAccessed)
	})
	if n > 0 && len(objs) > n {
		objs = objs[:n]
	}
	return objs, nil
}
