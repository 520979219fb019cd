//go:build mage
// +build mage

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binary = "bin/lifecycle"

// Default target when running mage without arguments.
var Default = Build

// Build builds the lifecycle binary.
func Build() error {
	mg.Deps(Generate)
	fmt.Println("Building lifecycle...")
	return sh.Run("go", "build", "-o", binary, "./cmd/lifecycle")
}

// Generate runs all code generation.
func Generate() error {
	mg.Deps(Wire)
	return nil
}

// Wire runs wire to generate dependency injection code.
func Wire() error {
	fmt.Println("Running wire...")

	wireDirs, err := findWireDirs()
	if err != nil {
		return fmt.Errorf("finding wire directories: %w", err)
	}

	for _, dir := range wireDirs {
		fmt.Printf("  Generating wire code for %s\n", dir)
		if err := sh.Run("wire", dir); err != nil {
			return fmt.Errorf("wire %s: %w", dir, err)
		}
	}

	return nil
}

// findWireDirs finds all directories containing wire.go files.
func findWireDirs() ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)

	err := filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip vendor, hidden and underscore directories
		if info.IsDir() {
			name := info.Name()
			if path != "." && (name == "vendor" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Name() == "wire.go" {
			dir := filepath.Dir(path)
			if !seen[dir] {
				seen[dir] = true
				dirs = append(dirs, "./"+dir)
			}
		}

		return nil
	})

	return dirs, err
}

// Test runs all tests.
func Test() error {
	fmt.Println("Running tests...")
	return sh.Run("go", "test", "-race", "./...")
}

// TestIntegration runs the postgres adapter tests against PORTRAITLAB_TEST_DSN.
func TestIntegration() error {
	if os.Getenv("PORTRAITLAB_TEST_DSN") == "" {
		return fmt.Errorf("PORTRAITLAB_TEST_DSN is not set")
	}
	fmt.Println("Running integration tests...")
	return sh.RunV("go", "test", "-tags", "integration", "-count=1", "./internal/adapter/outbound/postgres/...")
}

// TestCover runs tests with coverage.
func TestCover() error {
	fmt.Println("Running tests with coverage...")
	return sh.Run("go", "test", "-cover", "-coverprofile=coverage.out", "./...")
}

// Lint runs golangci-lint.
func Lint() error {
	fmt.Println("Running linter...")
	return sh.Run("golangci-lint", "run", "./...")
}

// Vet runs go vet.
func Vet() error {
	fmt.Println("Running go vet...")
	return sh.Run("go", "vet", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	fmt.Println("Cleaning...")
	if err := os.RemoveAll("bin"); err != nil {
		return err
	}
	_ = os.Remove("coverage.out")
	return nil
}

// Tidy runs go mod tidy.
func Tidy() error {
	fmt.Println("Running go mod tidy...")
	return sh.Run("go", "mod", "tidy")
}

// All runs tidy, generate, vet, lint, test, and build.
func All() error {
	mg.SerialDeps(Tidy, Generate, Vet, Lint, Test, Build)
	return nil
}

// Migrate builds the binary and applies the schema to the configured database.
func Migrate() error {
	mg.Deps(Build)
	fmt.Println("Migrating database...")
	return lifecycle("migrate")
}

// seedPlans are the subscription plans every environment starts with.
var seedPlans = []struct {
	id, name, interval string
	generations, cents int
}{
	{"starter-monthly", "Starter", "month", 50, 900},
	{"pro-monthly", "Pro", "month", 200, 2900},
	{"studio-yearly", "Studio", "year", -1, 29900},
}

// Seed migrates the configured database and upserts the default plans.
func Seed() error {
	mg.Deps(Migrate)
	for _, p := range seedPlans {
		fmt.Printf("Seeding plan %s...\n", p.id)
		err := lifecycle("plan",
			"-id", p.id,
			"-name", p.name,
			"-interval", p.interval,
			"-generations", strconv.Itoa(p.generations),
			"-price-cents", strconv.Itoa(p.cents),
		)
		if err != nil {
			return fmt.Errorf("seeding plan %s: %w", p.id, err)
		}
	}
	return nil
}

// Demo seeds the database and prints a fresh user's quota.
// Pass the email with DEMO_EMAIL; defaults to demo@portraitlab.local.
func Demo() error {
	mg.Deps(Seed)
	email := os.Getenv("DEMO_EMAIL")
	if email == "" {
		email = "demo@portraitlab.local"
	}

	out, err := sh.Output("./"+binary, "user", "-email", email, "-name", "Demo")
	if err != nil {
		return fmt.Errorf("creating demo user: %w", err)
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(out), &user); err != nil || user.ID == "" {
		return fmt.Errorf("unexpected user output %q", out)
	}
	fmt.Println(out)
	return lifecycle("quota", "-user", user.ID)
}

// lifecycle runs the built binary, streaming its output.
func lifecycle(args ...string) error {
	return sh.RunV("./"+binary, args...)
}

// CI runs the CI pipeline (tidy, generate, vet, test with coverage).
func CI() error {
	mg.SerialDeps(Tidy, Generate, Vet, TestCover)
	return nil
}

// Install installs development tools.
func Install() error {
	fmt.Println("Installing development tools...")

	tools := []string{
		"github.com/google/wire/cmd/wire@latest",
		"github.com/golangci/golangci-lint/cmd/golangci-lint@latest",
	}

	for _, tool := range tools {
		fmt.Printf("  Installing %s\n", tool)
		if err := sh.Run("go", "install", tool); err != nil {
			return fmt.Errorf("installing %s: %w", tool, err)
		}
	}

	return nil
}
