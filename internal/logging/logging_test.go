package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := map[string]zerolog.Level{
		"trace": zerolog.TraceLevel,
		"DEBUG": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
		"loud":  zerolog.InfoLevel,
	}
	for name, want := range tests {
		SetLevel(name)
		if got := zerolog.GlobalLevel(); got != want {
			t.Errorf("SetLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestStartupLogger_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)
	saved := log.Logger
	defer func() { log.Logger = saved }()

	var buf bytes.Buffer
	Setup("info", FormatJSON, &buf)

	NewStartupLogger("photoctl").
		Version("1.2.3").
		Store("objects", "s3://photos").
		Store("records", "postgres").
		SSMParam("dsn", "/photo/prod/dsn").
		Feature("weather", true).
		Config("batchSize", "16").
		InitDuration(5 * time.Millisecond).
		Log()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if doc["message"] != "Startup complete" {
		t.Errorf("message = %v", doc["message"])
	}
	process := doc["process"].(map[string]any)
	if process["name"] != "photoctl" || process["version"] != "1.2.3" {
		t.Errorf("process = %v", process)
	}
	stores := doc["stores"].(map[string]any)
	if stores["objects"] != "s3://photos" {
		t.Errorf("stores = %v", stores)
	}
	if doc["features"].(map[string]any)["weather"] != true {
		t.Errorf("features = %v", doc["features"])
	}
	if _, ok := doc["initDuration"]; !ok {
		t.Error("missing initDuration")
	}
}
