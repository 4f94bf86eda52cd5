package mockanthropic

import (
	"fmt"
	"sync"
	"time"

	"github.com/pagemagic/pagemagic/internal/llm/anthropic"
)

// DefaultReply is the assistant text returned unless configured otherwise
const DefaultReply = "body { background-color: #121212 !important; color: #e0e0e0 !important; }"

// File is an uploaded page snapshot
type File struct {
	ID        string
	Filename  string
	MimeType  string
	Content   string
	CreatedAt time.Time
}

// Failure makes the next Count calls to an operation fail with Status and Message.
// A Count of zero or less fails every call.
type Failure struct {
	Status  int    `json:"status"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// State holds the in-memory state of the mock model API
type State struct {
	mu     sync.RWMutex
	files  map[string]*File
	models []anthropic.ModelInfo
	nextID int

	apiKey     string
	reply      string
	stopReason string
	usage      anthropic.Usage

	failures map[string]*Failure

	// Counters for assertions
	uploads  int
	messages int
	deletes  int
	lastReq  *anthropic.MessagesRequest
}

// NewState creates a new mock state
func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset restores the default state
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = make(map[string]*File)
	s.nextID = 1000
	s.apiKey = ""
	s.reply = DefaultReply
	s.stopReason = "end_turn"
	s.usage = anthropic.Usage{
		InputTokens:              1200,
		OutputTokens:             80,
		CacheCreationInputTokens: 0,
		CacheReadInputTokens:     0,
	}
	s.failures = make(map[string]*Failure)
	s.uploads, s.messages, s.deletes = 0, 0, 0
	s.lastReq = nil
	s.models = defaultModels()
}

func defaultModels() []anthropic.ModelInfo {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	return []anthropic.ModelInfo{
		{ID: "claude-sonnet-4-20250514", Type: "model", DisplayName: "Claude Sonnet 4", CreatedAt: day(2025, 5, 14)},
		{ID: "claude-3-7-sonnet-20250219", Type: "model", DisplayName: "Claude Sonnet 3.7", CreatedAt: day(2025, 2, 19)},
		{ID: "claude-3-5-haiku-20241022", Type: "model", DisplayName: "Claude Haiku 3.5", CreatedAt: day(2024, 10, 22)},
		{ID: "claude-3-opus-20240229", Type: "model", DisplayName: "Claude Opus 3", CreatedAt: day(2024, 2, 29)},
	}
}

// SetAPIKey requires key on every request. An empty key accepts any non-empty key.
func (s *State) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = key
}

// Authorized reports whether key may call the API
func (s *State) Authorized(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key == "" {
		return false
	}
	return s.apiKey == "" || key == s.apiKey
}

// SetReply sets the assistant text and stop reason of later replies
func (s *State) SetReply(text, stopReason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = text
	if stopReason != "" {
		s.stopReason = stopReason
	}
}

// SetUsage sets the usage reported with later replies
func (s *State) SetUsage(u anthropic.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = u
}

// SetFailure makes calls to op ("upload", "messages", "delete", "models") fail
func (s *State) SetFailure(op string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = &f
}

// ClearFailures removes every configured failure
func (s *State) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]*Failure)
}

// takeFailure returns the failure configured for op, consuming one use
func (s *State) takeFailure(op string) (Failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.failures[op]
	if !ok {
		return Failure{}, false
	}
	if f.Count > 0 {
		f.Count--
		if f.Count == 0 {
			delete(s.failures, op)
		}
	}
	return *f, true
}

// AddFile stores an uploaded file and returns it
func (s *State) AddFile(filename, mimeType, content string) *File {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.uploads++
	f := &File{
		ID:        fmt.Sprintf("file_%d", s.nextID),
		Filename:  filename,
		MimeType:  mimeType,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.files[f.ID] = f
	return f
}

// GetFile returns an uploaded file
func (s *State) GetFile(id string) (*File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	return f, ok
}

// DeleteFile removes a file, reporting whether it existed
func (s *State) DeleteFile(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes++
	if _, ok := s.files[id]; !ok {
		return false
	}
	delete(s.files, id)
	return true
}

// ExpireFiles deletes every stored file, as the API does after its retention window
func (s *State) ExpireFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.files)
	s.files = make(map[string]*File)
	return n
}

// FileCount returns the number of stored files
func (s *State) FileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// recordMessage stores the request and returns the configured reply
func (s *State) recordMessage(req *anthropic.MessagesRequest) (string, string, anthropic.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages++
	s.lastReq = req
	return s.reply, s.stopReason, s.usage
}

// LastRequest returns the most recent messages request
func (s *State) LastRequest() *anthropic.MessagesRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReq
}

// Counts returns the number of uploads, messages and file deletions seen
func (s *State) Counts() (uploads, messages, deletes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploads, s.messages, s.deletes
}

// Models returns the model list
func (s *State) Models() []anthropic.ModelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]anthropic.ModelInfo, len(s.models))
	copy(out, s.models)
	return out
}
