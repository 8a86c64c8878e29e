package generator

// The two artifact templates. Layout is part of the contract: the creation
// block never carries an inline primary key, cast rules are comma-separated
// with no trailing comma, and the key plus derived indexes live exclusively
// in the post-load block.

const loadConfigTemplate = `-- pgloader configuration for table {{.TableName}}
-- Source: {{.CSVPath}}

LOAD CSV
     FROM '{{.CSVPath}}'
     INTO {{.DatabaseURL}}
     TARGET TABLE {{.TableName}}

     WITH skip header = 1,
          fields terminated by '{{.Delimiter}}',
          fields optionally enclosed by '"',
          batch rows = {{.Profile.BatchRows}},
          prefetch rows = {{.Profile.PrefetchRows}},
          workers = {{.Profile.Workers}},
          concurrency = {{.Profile.Concurrency}}

     SET work_mem to '{{.WorkMem}}',
         maintenance_work_mem to '{{.MaintenanceWorkMem}}'
{{if .CastRules}}
     CAST {{range $i, $rule := .CastRules}}{{if $i}},
          {{end}}{{$rule}}{{end}}
{{end}}
BEFORE LOAD DO
     $$ DROP TABLE IF EXISTS {{.TableName}}; $$,
     $$ CREATE TABLE {{.TableName}} (
{{range $i, $col := .ColumnDDL}}{{if $i}},
{{end}}            {{$col}}{{end}}
        ); $$

AFTER LOAD DO
{{range $i, $stmt := .AfterLoad}}{{if $i}},
{{end}}     $$ {{$stmt}} $${{end}}
;
`

const importScriptTemplate = `#!/usr/bin/env bash
# Import script for table {{.TableName}}
# Generated: {{.GeneratedAt}}
set -u

CONFIG_FILE="{{.ConfigPath}}"
STATE_FILE="{{.StatePath}}"
LOG_FILE="{{.LogPath}}"
CSV_FILE="{{.CSVPath}}"

if [ -f "$STATE_FILE" ] && grep -q '"status"[[:space:]]*:[[:space:]]*"completed"' "$STATE_FILE"; then
    echo "Import of {{.TableName}} already completed; nothing to do (state: $STATE_FILE)"
    exit 0
fi

echo "[$(date '+%Y-%m-%d %H:%M:%S')] starting import of $CSV_FILE into {{.TableName}}" | tee -a "$LOG_FILE"

pgloader "$CONFIG_FILE" >>"$LOG_FILE" 2>&1
STATUS=$?

if [ "$STATUS" -eq 0 ]; then
    echo "[$(date '+%Y-%m-%d %H:%M:%S')] import of {{.TableName}} completed" | tee -a "$LOG_FILE"
else
    echo "[$(date '+%Y-%m-%d %H:%M:%S')] import of {{.TableName}} failed (pgloader exit $STATUS)" | tee -a "$LOG_FILE"
fi

exit "$STATUS"
`
