package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Vesper Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	fmt.Println("API Keys (at least one is required):")
	fmt.Println()

	labels := map[string]string{"openai": "OpenAI", "anthropic": "Anthropic"}
	for _, provider := range []string{"openai", "anthropic"} {
		for {
			fmt.Printf("%s API Key (press Enter to skip): ", labels[provider])
			key, err := w.readLine()
			if err != nil {
				return nil, err
			}

			if key == "" {
				break
			}

			if err := validator.ValidateAPIKey(key, provider); err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}

			cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
				ID:       provider,
				Provider: provider,
				APIKey:   key,
			})
			break
		}
	}

	if len(cfg.AI.Profiles) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}

	fmt.Println()

	// Default model
	fmt.Println("Agent:")
	fmt.Printf("Model name [%s]: ", cfg.Agent.Model)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.Agent.Model = model
	}

	fmt.Println()

	// Command timeout
	fmt.Println("Shell:")
	for {
		fmt.Printf("Default command timeout in seconds [%d]: ", cfg.Shell.DefaultTimeoutSeconds)
		raw, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if raw == "" {
			break
		}

		seconds, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Println("Error: timeout must be a number")
			continue
		}
		if err := validator.ValidateTimeoutSeconds(seconds); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.Shell.DefaultTimeoutSeconds = seconds
		break
	}

	fmt.Println()

	// Log level
	fmt.Println("Logging:")
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
