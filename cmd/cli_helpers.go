package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/signkeeper/signkeeper/internal/engine"
	"github.com/signkeeper/signkeeper/internal/history"
	"github.com/signkeeper/signkeeper/internal/registry"
	"github.com/signkeeper/signkeeper/models"
	"github.com/signkeeper/signkeeper/store"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

func isJSON() bool {
	return viper.GetBool("json")
}

func isVerbose() bool {
	return viper.GetBool("verbose")
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

// newLogger builds the application logger. Verbose mode lowers the level
// to debug; otherwise only warnings and errors reach stderr so command
// output stays clean.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if isVerbose() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// dataBasePath returns the backend base path under the project data dir.
func dataBasePath() string {
	config := GetConfig()
	return filepath.Join(config.Project.RootDir, config.Project.DataDir, config.Data.File)
}

// GetStore initializes the key-value store selected by data.backend.
func GetStore() (store.KeyValueStore, error) {
	config := GetConfig()
	switch config.Data.Backend {
	case "sqlite":
		return store.NewSQLiteStore(dataBasePath() + ".db")
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewFileStore(afero.NewOsFs(), dataBasePath(), config.Data.Format)
	}
}

// app bundles the wired components behind one Close.
type app struct {
	store    store.KeyValueStore
	registry *registry.Registry
	history  *history.Engine
	engine   *engine.Engine
}

func (a *app) Close() {
	if a.registry != nil {
		_ = a.registry.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// openApp wires the store, registry, history, and execution engine. With
// data.watch enabled and a file backend, external edits to the data file
// invalidate the registry cache.
func openApp() (*app, error) {
	kv, err := GetStore()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	log := newLogger()
	reg := registry.New(kv, log)
	if GetConfig().Data.Watch {
		if fileStore, ok := kv.(*store.FileStore); ok {
			if err := reg.Watch(fileStore.LocalPath()); err != nil {
				log.Warn("task data watch unavailable", "error", err)
			}
		}
	}

	hist := history.New(kv, log)
	eng := engine.New(reg, scriptRuntime(), hist, log)
	return &app{store: kv, registry: reg, history: hist, engine: eng}, nil
}

// scriptRuntime returns the sandbox that builds capabilities from task
// code. None ships with the CLI; embedders replace this hook.
func scriptRuntime() engine.Runtime {
	return nil
}

// selectTaskInteractive presents a prompt to the user to select a task from a list.
func selectTaskInteractive(tasks []models.TaskRecord, label string) (models.TaskRecord, error) {
	if len(tasks) == 0 {
		return models.TaskRecord{}, ErrNoTasksFound
	}

	type row struct {
		Identity string
		Name     string
		Author   string
		Enabled  bool
	}
	rows := make([]row, len(tasks))
	for i, task := range tasks {
		rows[i] = row{
			Identity: task.Identity(),
			Name:     task.Name,
			Author:   task.Author,
			Enabled:  task.State.Enable,
		}
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   `> {{ .Name | cyan }} ({{ .Identity }})`,
		Inactive: `  {{ .Name | faint }} ({{ .Identity }})`,
		Selected: `{{ "✔" | green }} {{ .Identity | faint }}`,
		Details: `
--------- Task Details ----------
{{ "Identity:\t" | faint }} {{ .Identity }}
{{ "Name:\t" | faint }} {{ .Name }}
{{ "Author:\t" | faint }} {{ .Author }}
{{ "Enabled:\t" | faint }} {{ .Enabled }}`,
	}

	searcher := func(input string, index int) bool {
		identity := strings.ToLower(rows[index].Identity)
		return strings.Contains(identity, strings.ToLower(input))
	}

	prompt := promptui.Select{
		Label:     label,
		Items:     rows,
		Templates: templates,
		Searcher:  searcher,
	}

	i, _, err := prompt.Run()
	if err != nil {
		return models.TaskRecord{}, err
	}
	return tasks[i], nil
}

// resolveIdentity returns the identity from args, or prompts when no
// argument was given.
func resolveIdentity(ctx context.Context, a *app, args []string, label string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	tasks, err := a.registry.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list tasks: %w", err)
	}
	task, err := selectTaskInteractive(tasks, label)
	if err != nil {
		return "", err
	}
	return task.Identity(), nil
}
