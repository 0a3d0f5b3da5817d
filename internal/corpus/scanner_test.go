package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildCorpus 构造一个小型测试语料目录
//
//	USD1001  正常专利
//	USD1002  缺少 XML，应跳过
//	USD1003  存在两个 XML，应跳过
//	USD1004  XML 格式错误，应跳过
//	notes    非 USD 前缀目录，应忽略
func buildCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	d1 := filepath.Join(root, "USD1001")
	require.NoError(t, os.MkdirAll(d1, 0o755))
	writeGrantXML(t, d1, "USD1001.xml", sampleGrantXML)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "USD1002"), 0o755))

	d3 := filepath.Join(root, "USD1003")
	require.NoError(t, os.MkdirAll(d3, 0o755))
	writeGrantXML(t, d3, "a.xml", sampleGrantXML)
	writeGrantXML(t, d3, "b.xml", sampleGrantXML)

	d4 := filepath.Join(root, "USD1004")
	require.NoError(t, os.MkdirAll(d4, 0o755))
	writeGrantXML(t, d4, "USD1004.xml", "<broken")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o755))
	return root
}

func TestScan_SkipsBadEntries(t *testing.T) {
	root := buildCorpus(t)

	var got []string
	err := NewScanner(root).Scan(context.Background(), func(rec *PatentRecord) error {
		got = append(got, rec.PatentID)
		return nil
	})
	require.NoError(t, err)

	// 只有 USD1001 是合法条目
	assert.Equal(t, []string{"D1012345"}, got)
}

func TestScan_Restartable(t *testing.T) {
	root := buildCorpus(t)
	sc := NewScanner(root)

	for i := 0; i < 2; i++ {
		count := 0
		err := sc.Scan(context.Background(), func(*PatentRecord) error {
			count++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	}
}

func TestScan_StopEarly(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"USD2001", "USD2002", "USD2003"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		writeGrantXML(t, dir, name+".xml", sampleGrantXML)
	}

	count := 0
	err := NewScanner(root).Scan(context.Background(), func(*PatentRecord) error {
		count++
		if count == 2 {
			return ErrStopScan
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestScan_CallbackErrorPropagates(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "USD3001")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeGrantXML(t, dir, "USD3001.xml", sampleGrantXML)

	boom := errors.New("boom")
	err := NewScanner(root).Scan(context.Background(), func(*PatentRecord) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestScan_CancelledContext(t *testing.T) {
	root := buildCorpus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewScanner(root).Scan(ctx, func(*PatentRecord) error {
		t.Fatal("callback should not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScan_MissingRoot(t *testing.T) {
	err := NewScanner(filepath.Join(t.TempDir(), "missing")).Scan(context.Background(), func(*PatentRecord) error {
		return nil
	})
	assert.Error(t, err)
}
