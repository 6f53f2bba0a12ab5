package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAuditPathDefaultsToWalletFile(t *testing.T) {
	t.Chdir(t.TempDir())

	writer, err := newRotatingWriter("", 0, 0, 0)
	if err != nil {
		t.Fatalf("newRotatingWriter: %v", err)
	}
	defer writer.Close()

	if writer.path != DefaultAuditPath {
		t.Fatalf("path = %q, want %q", writer.path, DefaultAuditPath)
	}
	if _, err := writer.Write([]byte("{\"event\":\"broadcast\"}\n")); err != nil {
		t.Fatalf("写入审计日志失败: %v", err)
	}
	if _, err := os.Stat(DefaultAuditPath); err != nil {
		t.Fatalf("默认审计日志文件未创建: %v", err)
	}
}

func TestRotatingWriterKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	writer := &rotatingWriter{
		path:       path,
		maxSize:    32,
		maxBackups: 2,
		maxAge:     time.Hour,
	}
	defer writer.Close()

	chunk := bytes.Repeat([]byte("a"), 20)
	for i := 0; i < 3; i++ {
		if _, err := writer.Write(chunk); err != nil {
			t.Fatalf("第 %d 次写入失败: %v", i+1, err)
		}
	}

	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取当前日志失败: %v", err)
	}
	if !bytes.Equal(current, chunk) {
		t.Fatalf("轮转后当前文件应只包含最后一次写入, got %d bytes", len(current))
	}
	for _, backup := range []string{path + ".1", path + ".2"} {
		if _, err := os.Stat(backup); err != nil {
			t.Fatalf("缺少备份文件 %s: %v", backup, err)
		}
	}
}
