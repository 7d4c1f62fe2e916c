// Package confloader loads e-charlar configuration with koanf.
//
// Priority (highest to lowest):
//
//  1. Maps loaded with LoadMap (command-line flags)
//  2. Environment variables (ECHARLAR_ prefix)
//  3. The YAML configuration file
//  4. Defaults already present in the target struct
//
// Watcher reports changes to the configuration file through fsnotify.
package confloader
