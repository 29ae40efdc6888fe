package rawlog

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNewRotatorCreatesDatedFile(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRotator(dir, "basestation", testLogger())
	require.NoError(t, err)
	defer r.Close()

	want := filepath.Join(dir, "basestation_"+time.Now().UTC().Format("2006-01-02")+".log")
	assert.Equal(t, want, r.CurrentPath())

	_, err = os.Stat(want)
	assert.NoError(t, err)
}

func TestWriteAppendsToCurrentFile(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRotator(dir, "frames", testLogger())
	require.NoError(t, err)
	defer r.Close()

	w, err := r.GetWriter()
	require.NoError(t, err)
	_, err = w.Write([]byte("8D4840D6202CC371C32CE0576098\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(r.CurrentPath())
	require.NoError(t, err)
	assert.Equal(t, "8D4840D6202CC371C32CE0576098\n", string(data))
}

func TestRotationCompressesPreviousDay(t *testing.T) {
	dir := t.TempDir()

	// Open the rotator with a clock stuck on yesterday.
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	r := &Rotator{
		dir:    dir,
		prefix: "frames",
		logger: testLogger(),
		now:    func() time.Time { return yesterday },
	}
	require.NoError(t, r.rotate())
	defer r.Close()

	w, err := r.GetWriter()
	require.NoError(t, err)
	_, err = w.Write([]byte("old day line\n"))
	require.NoError(t, err)

	// Clock moves to today; the minute check should rotate.
	r.now = func() time.Time { return time.Now().UTC() }
	r.checkRotation()

	today := time.Now().UTC().Format("2006-01-02")
	assert.Equal(t, filepath.Join(dir, "frames_"+today+".log"), r.CurrentPath())

	gzPath := filepath.Join(dir, "frames_"+yesterday.Format("2006-01-02")+".log.gz")
	require.Eventually(t, func() bool {
		_, err := os.Stat(gzPath)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	f, err := os.Open(gzPath)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	content, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "old day line\n", string(content))

	// Original should be gone once compression finished.
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "frames_"+yesterday.Format("2006-01-02")+".log"))
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCheckRotationNoopSameDay(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRotator(dir, "frames", testLogger())
	require.NoError(t, err)
	defer r.Close()

	before := r.CurrentPath()
	r.checkRotation()
	assert.Equal(t, before, r.CurrentPath())
}

func TestCleanupOld(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRotator(dir, "frames", testLogger())
	require.NoError(t, err)
	defer r.Close()

	old := filepath.Join(dir, "frames_2020-01-01.log.gz")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	require.NoError(t, r.CleanupOld(7))

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))

	// Active file survives.
	_, err = os.Stat(r.CurrentPath())
	assert.NoError(t, err)
}

func TestCleanupOldRejectsNonPositive(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRotator(dir, "frames", testLogger())
	require.NoError(t, err)
	defer r.Close()

	assert.Error(t, r.CleanupOld(0))
}
