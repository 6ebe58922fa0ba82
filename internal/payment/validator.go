// Package payment is the simulated card check that gates settlement. No card
// network is contacted.
package payment

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

type Card struct {
	Name   string `json:"name"`
	Number string `json:"number"`
	Year   string `json:"year"`
	Month  string `json:"month"`
	Code   string `json:"code"`
}

// RejectionError names the first field that failed validation.
type RejectionError struct {
	Field   string
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

var (
	namePattern   = regexp.MustCompile(`^\p{L}+ \p{L}+$`)
	numberPattern = regexp.MustCompile(`^\d{8}$`)
	yearPattern   = regexp.MustCompile(`^\d{2}$`)
	monthPattern  = regexp.MustCompile(`^\d{2}$`)
	codePattern   = regexp.MustCompile(`^\d{3}$`)
)

type check struct {
	field   string
	message string
	ok      func(Card) bool
}

// Fields are checked in this order and the first failure wins.
var checks = []check{
	{"name", "name invalid", func(c Card) bool { return namePattern.MatchString(c.Name) }},
	// The account number is an 8 digit code, not a real card number.
	{"number", "account invalid", func(c Card) bool { return numberPattern.MatchString(c.Number) }},
	{"year", "year invalid", func(c Card) bool { return yearPattern.MatchString(c.Year) }},
	{"month", "month invalid", validMonth},
	{"code", "code invalid", func(c Card) bool { return codePattern.MatchString(c.Code) }},
}

func validMonth(c Card) bool {
	if !monthPattern.MatchString(c.Month) {
		return false
	}
	m, err := strconv.Atoi(c.Month)
	return err == nil && m >= 1 && m <= 12
}

// Validate returns a *RejectionError for the first invalid field.
func Validate(card Card) error {
	for _, c := range checks {
		if !c.ok(card) {
			return &RejectionError{Field: c.field, Message: c.message}
		}
	}
	return nil
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Validator struct {
	// Delay simulates processing time after a card passes validation.
	Delay time.Duration
	Sleep SleepFunc
}

func NewValidator(delay time.Duration) *Validator {
	return &Validator{Delay: delay, Sleep: contextSleep}
}

func (v *Validator) Validate(ctx context.Context, card Card) error {
	if err := Validate(card); err != nil {
		return err
	}

	if v.Delay <= 0 {
		return nil
	}

	sleep := v.Sleep
	if sleep == nil {
		sleep = contextSleep
	}
	if err := sleep(ctx, v.Delay); err != nil {
		return fmt.Errorf("payment processing: %w", err)
	}
	return nil
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
