package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"whisper-desktop/internal/bootstrap"
	"whisper-desktop/internal/domain"
)

// settingsEditor is the subset of App setters the CLI drives.
type settingsEditor interface {
	SetLocale(locale string) domain.Settings
	SetLanguage(lang string) domain.Settings
	SetModel(name string) domain.Settings
	SetModelsPath(path string) domain.Settings
	SetVAD(enabled bool) domain.Settings
	SetDisableGPU(disabled bool) domain.Settings
	SetThreadCount(n float64) domain.Settings
	SetOptimization(opt string) (domain.Settings, error)
}

var settingKeys = map[string]func(settingsEditor, string) (domain.Settings, error){
	"locale": func(e settingsEditor, v string) (domain.Settings, error) {
		return e.SetLocale(v), nil
	},
	"language": func(e settingsEditor, v string) (domain.Settings, error) {
		return e.SetLanguage(v), nil
	},
	"model": func(e settingsEditor, v string) (domain.Settings, error) {
		return e.SetModel(v), nil
	},
	"models-path": func(e settingsEditor, v string) (domain.Settings, error) {
		return e.SetModelsPath(v), nil
	},
	"vad": func(e settingsEditor, v string) (domain.Settings, error) {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("vad: %w", err)
		}
		return e.SetVAD(b), nil
	},
	"disable-gpu": func(e settingsEditor, v string) (domain.Settings, error) {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("disable-gpu: %w", err)
		}
		return e.SetDisableGPU(b), nil
	},
	"threads": func(e settingsEditor, v string) (domain.Settings, error) {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("threads: %w", err)
		}
		return e.SetThreadCount(n), nil
	},
	"optimization": func(e settingsEditor, v string) (domain.Settings, error) {
		return e.SetOptimization(v)
	},
}

func settingKeyNames() []string {
	names := make([]string, 0, len(settingKeys))
	for name := range settingKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func applySetting(editor settingsEditor, key, value string) (domain.Settings, error) {
	set, ok := settingKeys[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return domain.Settings{}, fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(settingKeyNames(), ", "))
	}
	return set(editor, strings.TrimSpace(value))
}

func settingsRows(s domain.Settings) [][]string {
	modelsPath := s.ModelsPath
	if modelsPath == "" {
		modelsPath = "(not set)"
	}
	return [][]string{
		{"locale", string(s.Locale)},
		{"language", s.Language},
		{"model", s.Model},
		{"models-path", modelsPath},
		{"vad", strconv.FormatBool(s.EnableVAD)},
		{"disable-gpu", strconv.FormatBool(s.DisableGPU)},
		{"threads", strconv.Itoa(s.ThreadCount)},
		{"optimization", string(s.Optimization)},
	}
}

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change user settings",
	}

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(app *bootstrap.App) error {
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Setting", "Value"}, settingsRows(app.GetSettings()), nil))
				if msg := app.SettingsError(); msg != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", msg)
				}
				return nil
			})
		},
	})

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long:  "Change one setting and save it. Keys: " + strings.Join(settingKeyNames(), ", ") + ".",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(app *bootstrap.App) error {
				settings, err := applySetting(app, args[0], args[1])
				if err != nil {
					return err
				}
				if err := app.SaveSettings(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Setting", "Value"}, settingsRows(settings), nil))
				return nil
			})
		},
	})

	return settingsCmd
}
