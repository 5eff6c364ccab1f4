package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"trackmyteam/internal/model"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validatorsOnce sync.Once

// registerValidators 向 gin 的校验引擎注册自定义规则。
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = v.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
			return model.TaskStatus(fl.Field().String()).Valid()
		})
	})
}

// deadlineLayouts 是可接受的截止时间格式。不带时区的格式按 UTC 解释。
var deadlineLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// Deadline 是请求中的截止时间。
type Deadline struct {
	time.Time
}

func (d *Deadline) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("deadline must be a string: %w", err)
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid deadline %q", raw)
}

func (d *Deadline) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
