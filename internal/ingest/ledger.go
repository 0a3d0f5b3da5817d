package ingest

import (
	"encoding/csv"
	"os"
	"sync"
)

// 失败原因写入清单前截断到该长度
const maxReasonLen = 100

// FailureEntry 失败清单中的一行
type FailureEntry struct {
	PatentID string
	FileName string
	Reason   string
}

// FailureLedger 追加式失败清单，运行结束时落盘为 CSV，供运维筛选后重跑。
// 追加操作串行化，允许并行化后的流水线共用一份清单。
type FailureLedger struct {
	mu      sync.Mutex
	entries []FailureEntry
}

func NewFailureLedger() *FailureLedger {
	return &FailureLedger{}
}

func (l *FailureLedger) Append(patentID, fileName, reason string) {
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	l.mu.Lock()
	l.entries = append(l.entries, FailureEntry{PatentID: patentID, FileName: fileName, Reason: reason})
	l.mu.Unlock()
}

func (l *FailureLedger) Entries() []FailureEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FailureEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *FailureLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// WriteCSV 将失败清单写入文件，格式: patent_id,file_name,error
func (l *FailureLedger) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"patent_id", "file_name", "error"}); err != nil {
		return err
	}
	for _, e := range l.Entries() {
		if err := w.Write([]string{e.PatentID, e.FileName, e.Reason}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
