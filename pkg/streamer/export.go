package streamer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flowsync-io/flowsync/pkg/models"
)

const timestampLayout = time.RFC3339Nano

// ExportFormat selects the log export encoding.
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatText ExportFormat = "txt"
)

// ExportLog renders the current execution and its message buffer.
//   - json: the full execution as a structured document
//   - csv: header Timestamp,Type,Content,StepId,ExecutionTime plus one row
//     per message, standard quote doubling
//   - txt: one line per message, "[HH:MM:SS] TYPE: content"
func (s *Streamer) ExportLog(format ExportFormat) ([]byte, error) {
	s.mu.Lock()
	execution := s.executionSnapshotLocked()
	s.mu.Unlock()

	if execution == nil {
		return nil, fmt.Errorf("%w: nothing to export", ErrExecutionNotActive)
	}

	switch format {
	case ExportFormatJSON:
		return json.MarshalIndent(execution, "", "  ")
	case ExportFormatCSV:
		return exportCSV(execution.Messages)
	case ExportFormatText:
		return exportText(execution.Messages)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func exportCSV(messages []models.ConversationalMessage) ([]byte, error) {
	var buf bytes.Buffer

	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Timestamp", "Type", "Content", "StepId", "ExecutionTime"}); err != nil {
		return nil, err
	}

	for _, message := range messages {
		executionTime := ""
		if message.Metadata.ExecutionTimeMs > 0 {
			executionTime = strconv.FormatInt(message.Metadata.ExecutionTimeMs, 10)
		}

		record := []string{
			message.Timestamp.UTC().Format(timestampLayout),
			string(message.Type),
			message.Content,
			message.Metadata.StepID,
			executionTime,
		}

		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func exportText(messages []models.ConversationalMessage) ([]byte, error) {
	var buf bytes.Buffer

	for _, message := range messages {
		fmt.Fprintf(&buf, "[%s] %s: %s\n",
			message.Timestamp.UTC().Format("15:04:05"),
			strings.ToUpper(string(message.Type)),
			message.Content,
		)
	}

	return buf.Bytes(), nil
}
