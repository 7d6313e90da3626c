package main

import (
	"errors"
	"flag"
	"log"

	"cashier/internal/pkg/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	dir := flag.String("dir", "migrations", "迁移文件目录")
	down := flag.Bool("down", false, "回滚全部迁移")
	force := flag.Int("force", -1, "强制设置版本后退出，用于修复 dirty 状态")
	flag.Parse()

	if err := config.LoadConfig(); err != nil {
		log.Fatal(err)
	}

	m, err := migrate.New("file://"+*dir, config.GlobalConfig.Database.URL())
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	if *force >= 0 {
		if err := m.Force(*force); err != nil {
			log.Fatal("Failed to force version:", err)
		}
		log.Printf("Forced version %d", *force)
		return
	}

	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		// dirty 状态需要人工确认后使用 -force 修复
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			log.Fatalf("Database is dirty at version %d, fix it and rerun with -force", dirty.Version)
		}
		log.Fatal(err)
	}

	log.Println("Migration successful")
}
