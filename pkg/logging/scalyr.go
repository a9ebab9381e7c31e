package logging

import (
	"encoding/json"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var bufferPool = buffer.NewPool()

// ScalyrEncoder writes one flat JSON object per entry, the layout Scalyr parses without a custom parser.
// Context added through logger.With accumulates in the embedded map encoder.
type ScalyrEncoder struct {
	*zapcore.MapObjectEncoder
	timeKey    string
	levelKey   string
	messageKey string
}

// NewScalyrEncoder creates a new Scalyr-compatible encoder
func NewScalyrEncoder(config zapcore.EncoderConfig) zapcore.Encoder {
	return &ScalyrEncoder{
		MapObjectEncoder: zapcore.NewMapObjectEncoder(),
		timeKey:          keyOr(config.TimeKey, "timestamp"),
		levelKey:         keyOr(config.LevelKey, "level"),
		messageKey:       keyOr(config.MessageKey, "message"),
	}
}

func keyOr(key, fallback string) string {
	if key == "" || key == zapcore.OmitKey {
		return fallback
	}
	return key
}

// EncodeEntry encodes a log entry in Scalyr-compatible format
func (e *ScalyrEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	obj := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		obj.Fields[k] = v
	}
	for _, field := range fields {
		field.AddTo(obj)
	}

	out := obj.Fields
	for k, v := range out {
		switch val := v.(type) {
		case time.Duration:
			out[k] = val.String()
		case time.Time:
			out[k] = val.UTC().Format(time.RFC3339Nano)
		}
	}
	out[e.timeKey] = entry.Time.UTC().Format(time.RFC3339Nano)
	out[e.levelKey] = entry.Level.String()
	out[e.messageKey] = entry.Message
	if entry.LoggerName != "" {
		out["logger"] = entry.LoggerName
	}
	if entry.Caller.Defined {
		out["file"] = entry.Caller.TrimmedPath()
		out["line"] = entry.Caller.Line
		out["function"] = entry.Caller.Function
	}
	if entry.Stack != "" {
		out["stack"] = entry.Stack
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	buf := bufferPool.Get()
	buf.AppendBytes(data)
	buf.AppendByte('\n')
	return buf, nil
}

// Clone creates a copy of the encoder, including accumulated context
func (e *ScalyrEncoder) Clone() zapcore.Encoder {
	ctx := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		ctx.Fields[k] = v
	}
	return &ScalyrEncoder{
		MapObjectEncoder: ctx,
		timeKey:          e.timeKey,
		levelKey:         e.levelKey,
		messageKey:       e.messageKey,
	}
}
