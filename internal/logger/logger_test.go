package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text")

	Info("loading image", "key", "https://example.com/a.jpg_100x100", "tier", "memory")

	out := buf.String()
	if !strings.Contains(out, "loading image") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.Contains(out, "key=https://example.com/a.jpg_100x100") {
		t.Errorf("output missing attr: %q", out)
	}
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("output missing level: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")

	Debug("should be hidden")
	Info("should be hidden too")
	Warn("visible warning")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("low-level records leaked: %q", out)
	}
	if !strings.Contains(out, "visible warning") {
		t.Errorf("warning missing: %q", out)
	}

	// restore default for other tests
	SetLevel("INFO")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("fetch complete", "bytes", 1024)

	out := buf.String()
	if !strings.Contains(out, `"msg":"fetch complete"`) {
		t.Errorf("unexpected json output: %q", out)
	}
	if !strings.Contains(out, `"bytes":1024`) {
		t.Errorf("missing field in json output: %q", out)
	}

	SetFormat("text")
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	SetLevel("NOISY")
	Info("still works")

	if !strings.Contains(buf.String(), "still works") {
		t.Errorf("logger broke on invalid level: %q", buf.String())
	}
}
