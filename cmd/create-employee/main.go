package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/luxeledger/inventory-backend/internal/users"
	"github.com/luxeledger/inventory-backend/pkg/config"
	"github.com/luxeledger/inventory-backend/pkg/db"
	"github.com/luxeledger/inventory-backend/pkg/logger"
	"github.com/luxeledger/inventory-backend/pkg/migrate"
	"github.com/luxeledger/inventory-backend/pkg/security"
	"github.com/luxeledger/inventory-backend/pkg/types"
)

// passwordEnv lets scripted provisioning skip the interactive prompt.
const passwordEnv = "LUXE_EMPLOYEE_PASSWORD"

type employeeInput struct {
	Email    string `validate:"required,email"`
	Name     string `validate:"max=120"`
	Password string `validate:"required,min=8,max=256"`
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "create-employee"})
	_ = godotenv.Load()

	email := flag.String("email", "", "employee email")
	name := flag.String("name", "", "display name")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail(logg, "failed to load config", err)
	}

	input := employeeInput{
		Email: types.NormalizeEmail(*email),
		Name:  strings.TrimSpace(*name),
	}
	input.Password, err = readPassword()
	if err != nil {
		fail(logg, "failed to read password", err)
	}
	if err := validator.New().Struct(input); err != nil {
		fail(logg, "invalid employee", err)
	}

	ctx := logg.WithField(context.Background(), "email", input.Email)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(logg, "failed to bootstrap database", err)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		fail(logg, "failed to run dev migrations", err)
	}

	hash, err := security.HashPassword(input.Password, cfg.Password)
	if err != nil {
		fail(logg, "failed to hash password", err)
	}

	employee, err := users.NewRepository(dbClient.DB()).CreateEmployee(ctx, users.CreateEmployeeDTO{
		Email:        input.Email,
		PasswordHash: hash,
		Name:         input.Name,
	})
	if errors.Is(err, users.ErrEmailTaken) {
		fmt.Fprintf(os.Stderr, "an employee with email %s already exists\n", input.Email)
		os.Exit(2)
	}
	if err != nil {
		fail(logg, "failed to create employee", err)
	}

	logg.Info(logg.WithField(ctx, "employee_id", employee.ID.String()), "employee created")
	fmt.Println("created employee:", employee.ID)
}

func readPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func fail(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
