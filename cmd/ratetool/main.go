package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/YardLink/YardLink/internal/common/config"
	"github.com/YardLink/YardLink/internal/common/db"
	"github.com/YardLink/YardLink/internal/rate"
	"github.com/google/uuid"
)

// 线路价维护小工具：
//
//	ratetool -config configs/dispatch-service.json list
//	ratetool -config configs/dispatch-service.json seed
//	ratetool -config configs/dispatch-service.json set -origin "FedEx Memphis" -dest "Fleet Memphis" -amount 200 -miles 95
var (
	configPath = flag.String("config", "configs/dispatch-service.json", "配置文件路径")
	origin     = flag.String("origin", "", "线路起点")
	dest       = flag.String("dest", "", "线路终点")
	amount     = flag.Float64("amount", 0, "标准报价（美元）")
	miles      = flag.Float64("miles", 0, "线路里程")
)

func main() {
	flag.Parse()
	cmd := flag.Arg(0)
	if cmd == "" {
		fmt.Fprintln(os.Stderr, "usage: ratetool [flags] list|seed|set")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init mysql: %v\n", err)
		os.Exit(1)
	}
	if err := gormDB.AutoMigrate(&rate.RouteRate{}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	repo := rate.NewRepo(gormDB)

	switch cmd {
	case "list":
		rates, err := repo.ListAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
			os.Exit(1)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ORIGIN\tDESTINATION\tAMOUNT\tMILES")
		for _, r := range rates {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%.0f\n", r.Origin, r.Destination, r.Amount, r.Miles)
		}
		w.Flush()
	case "seed":
		if err := repo.SeedDefaults(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("default route rates seeded")
	case "set":
		if *origin == "" || *dest == "" || *amount <= 0 {
			fmt.Fprintln(os.Stderr, "set requires -origin, -dest and a positive -amount")
			os.Exit(2)
		}
		rr := &rate.RouteRate{
			ID:          uuid.NewString(),
			Origin:      *origin,
			Destination: *dest,
			Amount:      *amount,
			Miles:       *miles,
		}
		if err := repo.Upsert(ctx, rr); err != nil {
			fmt.Fprintf(os.Stderr, "set failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s -> %s = %.2f\n", rr.Origin, rr.Destination, rr.Amount)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		os.Exit(2)
	}
}
