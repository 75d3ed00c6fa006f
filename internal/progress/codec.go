package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/edulingo/internal/model"
)

// Persisted field names. Each is stored under "<namespace>:<name>".
const (
	KeyXP               = "xp"
	KeyStreak           = "streak"
	KeyLastPracticeDate = "lastPracticeDate"
	KeyLastPracticed    = "lastPracticed"
	KeyHistory          = "quizHistory"
)

// Keys lists every persisted field name.
var Keys = []string{KeyXP, KeyStreak, KeyLastPracticeDate, KeyLastPracticed, KeyHistory}

const (
	keyPrefix         = "edulingo"
	anonymousIdentity = "anonymous"
)

// Namespace returns the key namespace for identity.
func Namespace(identity string) string {
	return keyPrefix + ":" + canonicalIdentity(identity)
}

func canonicalIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return anonymousIdentity
	}
	return identity
}

// Encode renders state as the persisted field values, keyed by field name.
// Absent optional fields are omitted.
func Encode(st model.ProgressState) (map[string]string, error) {
	out := map[string]string{
		KeyXP:     strconv.Itoa(st.XP),
		KeyStreak: strconv.Itoa(st.Streak),
	}
	if st.LastPracticeDate != nil {
		out[KeyLastPracticeDate] = st.LastPracticeDate.Format(time.RFC3339)
	}
	if st.LastPracticed != nil {
		b, err := json.Marshal(st.LastPracticed)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", KeyLastPracticed, err)
		}
		out[KeyLastPracticed] = string(b)
	}
	history := st.History
	if history == nil {
		history = []model.SessionResult{}
	}
	b, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", KeyHistory, err)
	}
	out[KeyHistory] = string(b)
	return out, nil
}

// Decode rebuilds state from persisted field values. A field that is absent
// or cannot be decoded falls back to its default; decode problems are
// returned joined so the caller can log them.
func Decode(values map[string]string) (model.ProgressState, error) {
	var (
		st   model.ProgressState
		errs []error
	)

	if v, ok := values[KeyXP]; ok {
		n, err := decodeCount(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", KeyXP, err))
		}
		st.XP = n
	}
	if v, ok := values[KeyStreak]; ok {
		n, err := decodeCount(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", KeyStreak, err))
		}
		st.Streak = n
	}
	if v, ok := values[KeyLastPracticeDate]; ok && v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", KeyLastPracticeDate, err))
		} else {
			st.LastPracticeDate = &t
		}
	}
	if v, ok := values[KeyLastPracticed]; ok && v != "" {
		var p model.Practice
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", KeyLastPracticed, err))
		} else {
			st.LastPracticed = &p
		}
	}
	if v, ok := values[KeyHistory]; ok && v != "" {
		var h []model.SessionResult
		if err := json.Unmarshal([]byte(v), &h); err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", KeyHistory, err))
		} else {
			st.History = h
		}
	}
	return st, errors.Join(errs...)
}

func decodeCount(v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}
