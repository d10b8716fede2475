// Command formflow registers a form definition and walks a respondent
// through it interactively, printing the stored response with its computed
// values.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/rs/zerolog"

	storesqlite "github.com/goliatone/go-formflow/internal/storage/sqlite"

	"github.com/goliatone/go-formflow/internal/loader"
	"github.com/goliatone/go-formflow/pkg/audit"
	"github.com/goliatone/go-formflow/pkg/form"
	"github.com/goliatone/go-formflow/pkg/lifecycle"
	"github.com/goliatone/go-formflow/pkg/storage/memory"
	"github.com/goliatone/go-formflow/pkg/validate"
	"github.com/goliatone/go-formflow/pkg/visibility"
	visexpr "github.com/goliatone/go-formflow/pkg/visibility/expr"
)

func main() {
	definition := flag.String("definition", "", "form definition file (YAML or JSON)")
	dbPath := flag.String("db", "", "sqlite database path (in-memory store if empty)")
	actor := flag.String("actor", "formflow-cli", "actor recorded in the audit trail")
	conditionals := flag.String("conditionals", "equality", "conditional dialect: equality (field=value) or expr (boolean expressions)")
	checkOnly := flag.Bool("validate", false, "validate the definition and exit")
	verbose := flag.Bool("verbose", false, "log audit events to stderr")
	flag.Parse()

	if *definition == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	doc, err := loader.FromFile(*definition)
	if err != nil {
		log.Fatalf("Failed to load definition: %v", err)
	}

	repo, cleanup, err := openRepository(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer cleanup()

	eval, err := visibilityEvaluator(*conditionals)
	if err != nil {
		log.Fatalf("%v", err)
	}

	options := []lifecycle.Option{
		lifecycle.WithRepository(repo),
		lifecycle.WithVisibilityEvaluator(eval),
	}
	if *verbose {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		options = append(options,
			lifecycle.WithLogger(logger),
			lifecycle.WithAuditSink(audit.NewZerologSink(logger)))
	}
	engine := lifecycle.New(options...)

	created, err := engine.Create(ctx, doc.Form(), *actor)
	if err != nil {
		log.Fatalf("Invalid definition: %v", err)
	}
	if *checkOnly {
		fmt.Printf("Definition %s is valid (%d fields)\n", doc.Name, len(created.Fields))
		return
	}

	values, err := collectValues(created, eval)
	if err != nil {
		log.Fatalf("Aborted: %v", err)
	}

	response, err := engine.SubmitResponse(ctx, created.ID, lifecycle.Submission{Values: values}, *actor)
	if err != nil {
		log.Fatalf("Submission rejected: %v", err)
	}

	out, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode response: %v", err)
	}
	fmt.Println(string(out))
}

func visibilityEvaluator(dialect string) (visibility.Evaluator, error) {
	switch dialect {
	case "equality":
		return visibility.NewEquality(), nil
	case "expr":
		return visexpr.New(), nil
	}
	return nil, fmt.Errorf("unknown conditional dialect %q", dialect)
}

func openRepository(path string) (lifecycle.Repository, func(), error) {
	if path == "" {
		return memory.New(), func() {}, nil
	}
	repo, err := storesqlite.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close() }, nil
}

// collectValues prompts for every visible non-calculated field in declared
// order. Conditional fields are re-evaluated against the answers given so
// far, so an out-of-scope field is never shown.
func collectValues(f form.Form, eval visibility.Evaluator) (map[string]any, error) {
	values := make(map[string]any)

	for _, field := range f.Fields {
		if field.Calculated() {
			continue
		}
		visible, err := eval.Eval(field.ID, field.Conditional, visibility.Context{Values: values})
		if err != nil {
			return nil, err
		}
		if !visible {
			continue
		}
		value, ok, err := promptField(field)
		if err != nil {
			return nil, err
		}
		if ok {
			values[field.ID] = value
		}
	}
	return values, nil
}

func promptField(field form.Field) (any, bool, error) {
	message := field.Label
	if message == "" {
		message = field.ID
	}

	switch field.Kind {
	case form.KindBoolean:
		var out bool
		prompt := &survey.Confirm{Message: message, Help: field.Description}
		if err := survey.AskOne(prompt, &out); err != nil {
			return nil, false, err
		}
		return out, true, nil

	case form.KindSelect:
		labels := make([]string, len(field.Options))
		byLabel := make(map[string]string, len(field.Options))
		for i, opt := range field.Options {
			labels[i] = opt.Label
			byLabel[opt.Label] = opt.Value
		}
		if field.Multiple {
			var picked []string
			prompt := &survey.MultiSelect{Message: message, Options: labels, Help: field.Description}
			if err := survey.AskOne(prompt, &picked); err != nil {
				return nil, false, err
			}
			if len(picked) == 0 && !field.Required {
				return nil, false, nil
			}
			out := make([]string, len(picked))
			for i, label := range picked {
				out[i] = byLabel[label]
			}
			return out, true, nil
		}
		var picked string
		prompt := &survey.Select{Message: message, Options: labels, Help: field.Description}
		if err := survey.AskOne(prompt, &picked); err != nil {
			return nil, false, err
		}
		return byLabel[picked], true, nil

	case form.KindNumber:
		var raw string
		prompt := &survey.Input{Message: message, Help: field.Description}
		err := survey.AskOne(prompt, &raw, survey.WithValidator(func(ans interface{}) error {
			text := strings.TrimSpace(ans.(string))
			if text == "" {
				if field.Required {
					return fmt.Errorf("a value is required")
				}
				return nil
			}
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return fmt.Errorf("enter a number")
			}
			return validate.Value(field, num)
		}))
		if err != nil {
			return nil, false, err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, false, nil
		}
		num, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false, err
		}
		return num, true, nil

	default: // text and date share the free-form input path
		var raw string
		prompt := &survey.Input{Message: message, Help: field.Description}
		err := survey.AskOne(prompt, &raw, survey.WithValidator(func(ans interface{}) error {
			text := strings.TrimSpace(ans.(string))
			if text == "" && !field.Required {
				return nil
			}
			return validate.Value(field, text)
		}))
		if err != nil {
			return nil, false, err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, false, nil
		}
		return raw, true, nil
	}
}
