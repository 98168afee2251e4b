package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NoticeLevel sits below DebugLevel for informational, non-error entries.
const NoticeLevel zapcore.Level = -2

// Layers used as the "layer" of an entry.
const (
	LayerService   = "service"
	LayerTransport = "transport"
	LayerRunner    = "runner"
)

type logEntry struct {
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	TraceID    string         `json:"traceID"` // request id, follows one verification across layers
	Layer      string         `json:"layer"`
	Attributes map[string]any `json:"attributes"`
}

// LogStreamer ships service-level entries to a JSON-lines file in
// development or to a Better Stack source over HTTP otherwise. Every entry
// is also mirrored to the zap logger.
type LogStreamer struct {
	sourceToken string
	environment string
	uploadURL   string
	logger      *zap.Logger
	client      *http.Client
	fileWriter  io.Writer
	fileMu      sync.Mutex
	inflight    sync.WaitGroup
}

// NewLogStreamer creates a streamer. logFile is only used in development;
// an empty uploadURL disables remote shipping.
func NewLogStreamer(sourceToken, environment, uploadURL, logFile string, logger *zap.Logger) *LogStreamer {
	streamer := &LogStreamer{
		sourceToken: sourceToken,
		environment: environment,
		uploadURL:   uploadURL,
		logger:      logger,
	}

	if environment == "development" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			logger.Error("Failed to open log file", zap.String("path", logFile), zap.Error(err))
			streamer.fileWriter = os.Stderr
		} else {
			streamer.fileWriter = f
		}
	} else {
		streamer.client = &http.Client{Timeout: 10 * time.Second}
	}

	return streamer
}

func levelString(level zapcore.Level) string {
	switch level {
	case zapcore.ErrorLevel:
		return "ERROR"
	case zapcore.WarnLevel:
		return "WARN"
	case zapcore.InfoLevel:
		return "INFO"
	case NoticeLevel:
		return "NOTICE"
	case zapcore.DebugLevel:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Log records one entry. Entries without a trace id are dropped.
func (s *LogStreamer) Log(level zapcore.Level, traceID string, message string, attributes map[string]any, layer string, err error) {
	if traceID == "" {
		return
	}

	if attributes == nil {
		attributes = make(map[string]any)
	}
	if err != nil {
		attributes["error"] = err.Error()
	}

	entry := logEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      levelString(level),
		Message:    message,
		TraceID:    traceID,
		Layer:      layer,
		Attributes: attributes,
	}

	body, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		s.logger.Error("Failed to marshal log", zap.Error(marshalErr))
		return
	}

	if s.environment == "development" {
		s.fileMu.Lock()
		_, writeErr := s.fileWriter.Write(append(body, '\n'))
		s.fileMu.Unlock()
		if writeErr != nil {
			s.logger.Error("Failed to write log to file", zap.Error(writeErr))
		}
	} else if s.uploadURL != "" {
		s.ship(body)
	}

	s.logger.Log(level, message,
		zap.String("traceID", traceID),
		zap.String("layer", layer),
		zap.Any("attributes", attributes))
}

// ship posts the entry asynchronously
func (s *LogStreamer) ship(body []byte) {
	req, err := http.NewRequest(http.MethodPost, s.uploadURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("Failed to create HTTP request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.sourceToken)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		resp, err := s.client.Do(req)
		if err != nil {
			s.logger.Error("Failed to send log to Better Stack", zap.Error(err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
			s.logger.Error("Unexpected response from Better Stack", zap.String("status", resp.Status))
		}
	}()
}

// Flush waits for entries still being shipped.
func (s *LogStreamer) Flush() {
	s.inflight.Wait()
}
