/*
Package config loads HeavenGate's key=value configuration file and
exposes typed accessors over it.

Load reads the file at DefaultPath (or an explicit path), ignoring
blank lines and '#' comments. Callers combine a Config with CLI flags
to get a three-tier precedence: an explicitly-set flag wins, otherwise
the file value, otherwise the compiled-in default — see StringSetting
and IntSetting.
*/
package config
