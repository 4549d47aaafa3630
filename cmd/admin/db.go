package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	batchID := fs.String("batch", "", "batch_id filter (runs, report; defaults to latest)")
	outcome := fs.String("outcome", "", "outcome filter (runs)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "batches"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "batches.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	if q == "runs" || q == "report" {
		if *batchID == "" {
			id, err := latestBatchID(db)
			if err != nil {
				fmt.Fprintln(os.Stderr, "latest batch:", err)
				os.Exit(1)
			}
			if id == "" {
				fmt.Fprintln(os.Stderr, "no batches found")
				os.Exit(2)
			}
			*batchID = id
		}
	}

	switch q {
	case "batches":
		rows, err := db.Query(`SELECT batch_id,policy,era,seed,replications,workers,started_at,COALESCE(finished_at,''),COALESCE(successes,0),COALESCE(failures,0),COALESCE(step_limited,0),COALESCE(violations,0),COALESCE(success_rate,0),COALESCE(mean_hours_success,0) FROM batches ORDER BY started_at DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				BatchID          string  `json:"batch_id"`
				Policy           string  `json:"policy"`
				Era              string  `json:"era"`
				Seed             uint64  `json:"seed"`
				Replications     int     `json:"replications"`
				Workers          int     `json:"workers"`
				StartedAt        string  `json:"started_at"`
				FinishedAt       string  `json:"finished_at,omitempty"`
				Successes        int     `json:"successes"`
				Failures         int     `json:"failures"`
				StepLimited      int     `json:"step_limited"`
				Violations       int     `json:"violations"`
				SuccessRate      float64 `json:"success_rate"`
				MeanHoursSuccess float64 `json:"mean_hours_success"`
			}
			var seed int64
			if err := rows.Scan(&r.BatchID, &r.Policy, &r.Era, &seed, &r.Replications, &r.Workers, &r.StartedAt, &r.FinishedAt, &r.Successes, &r.Failures, &r.StepLimited, &r.Violations, &r.SuccessRate, &r.MeanHoursSuccess); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Seed = uint64(seed)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "runs":
		query := `SELECT idx,seed,outcome,steps,elapsed_ns,end_points,min_points,max_points,total_points,tasks_started,tasks_done,kills,digest,COALESCE(violation,'') FROM runs WHERE batch_id=?`
		qargs := []any{*batchID}
		if *outcome != "" {
			query += ` AND outcome=?`
			qargs = append(qargs, strings.ToUpper(*outcome))
		}
		query += ` ORDER BY idx LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Index        int    `json:"idx"`
				Seed         uint64 `json:"seed"`
				Outcome      string `json:"outcome"`
				Steps        int    `json:"steps"`
				ElapsedNs    int64  `json:"elapsed_ns"`
				EndPoints    int64  `json:"end_points"`
				MinPoints    int64  `json:"min_points"`
				MaxPoints    int64  `json:"max_points"`
				TotalPoints  int64  `json:"total_points"`
				TasksStarted int64  `json:"tasks_started"`
				TasksDone    int64  `json:"tasks_done"`
				Kills        int64  `json:"kills"`
				Digest       string `json:"digest"`
				Violation    string `json:"violation,omitempty"`
			}
			var seed int64
			if err := rows.Scan(&r.Index, &seed, &r.Outcome, &r.Steps, &r.ElapsedNs, &r.EndPoints, &r.MinPoints, &r.MaxPoints, &r.TotalPoints, &r.TasksStarted, &r.TasksDone, &r.Kills, &r.Digest, &r.Violation); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Seed = uint64(seed)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "outcomes":
		rows, err := db.Query(`SELECT batch_id,outcome,COUNT(*),AVG(elapsed_ns),MIN(min_points) FROM runs GROUP BY batch_id,outcome ORDER BY batch_id,outcome`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				BatchID      string  `json:"batch_id"`
				Outcome      string  `json:"outcome"`
				Count        int     `json:"count"`
				MeanElapsed  float64 `json:"mean_elapsed_ns"`
				LowestPoints int64   `json:"lowest_min_points"`
			}
			if err := rows.Scan(&r.BatchID, &r.Outcome, &r.Count, &r.MeanElapsed, &r.LowestPoints); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "report":
		var raw sql.NullString
		if err := db.QueryRow(`SELECT report_json FROM batches WHERE batch_id=?`, *batchID).Scan(&raw); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		if !raw.Valid {
			fmt.Fprintln(os.Stderr, "batch has not finished:", *batchID)
			os.Exit(2)
		}
		printJSON(json.RawMessage(raw.String))

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-batch ID] [-outcome O] [-limit N] batches|runs|outcomes|report|catalogs")
		os.Exit(2)
	}
}

func latestBatchID(db *sql.DB) (string, error) {
	if db == nil {
		return "", fmt.Errorf("nil db")
	}
	var id sql.NullString
	if err := db.QueryRow(`SELECT batch_id FROM batches ORDER BY started_at DESC LIMIT 1`).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return id.String, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
