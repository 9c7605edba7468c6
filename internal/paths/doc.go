// Provides the well-known filesystem layout used by offstage.
//
// Build-time inputs (the staged package directories, the requirements
// manifest and the application source) and runtime outputs (the application
// directory and the environment flags file) live at fixed paths so that the
// image recipe and the launcher agree on them without sharing state. Every
// path can be overridden from the command line.
//
// Configuration files are discovered following XDG conventions: a system
// file under /etc/offstage and a per-user file under $XDG_CONFIG_HOME.
package paths
