// Package cli provides common CLI utilities for trigate command-line tools.
//
// This package includes:
//   - Configuration management (contexts)
//   - Output formatting (JSON, YAML, table)
//   - Request file loading (YAML/JSON)
//   - Terminal UI building blocks for the serve status view
//
// Configuration is stored in ~/.trigate/<app>/ directory, supporting
// multiple contexts similar to kubectl.
//
// Example usage:
//
//	// Initialize config for your app
//	cfg, err := cli.LoadConfig("trigate")
//
//	// Get current context
//	ctx, err := cfg.GetCurrentContext()
//
//	// Output result
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
package cli
