package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var departments = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var workdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}

func main() {
	logger := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.NewMigrator(pool).Up(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	deptIDs, err := seedDepartments(context.Background(), pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed departments")
	}
	if err := seedDoctors(context.Background(), pool, faker, deptIDs, 100, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, faker, 9000, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedAdmin(context.Background(), pool, faker, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed admin")
	}

	logger.Info().Msg("seed complete")
}

func seedDepartments(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(departments))
	for _, name := range departments {
		var id uuid.UUID
		err := pool.QueryRow(ctx, `
			INSERT INTO departments (id, name, is_active)
			VALUES ($1, $2, TRUE)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, uuid.New(), name).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("department %s: %w", name, err)
		}
		ids = append(ids, id)
	}
	logger.Info().Int("count", len(ids)).Msg("departments seeded")
	return ids, nil
}

// randomAvailability offers a few workdays, each with a random subset of the
// fixed slots kept in chronological order.
func randomAvailability(faker *gofakeit.Faker) schedule.WeeklyAvailability {
	days := append([]time.Weekday(nil), workdays...)
	faker.ShuffleAnySlice(days)
	days = days[:faker.Number(2, 5)]

	avail := make(schedule.WeeklyAvailability, 0, len(days))
	for _, d := range days {
		var slots []schedule.TimeSlot
		for _, s := range schedule.AllSlots {
			if faker.Bool() {
				slots = append(slots, s)
			}
		}
		if len(slots) == 0 {
			slots = []schedule.TimeSlot{schedule.Slot0900}
		}
		avail = append(avail, schedule.DayAvailability{Day: d, Slots: slots})
	}
	return avail
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, deptIDs []uuid.UUID, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		dept := faker.Number(0, len(deptIDs)-1)
		avail, err := json.Marshal(randomAvailability(faker))
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO actors (id, name, email, role, is_active,
			                    specialization, license_number, department_id, consultation_fee, availability)
			VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8, $9)
		`, uuid.New(), "Dr. "+faker.Name(), uniqueEmail("doctor", i, faker), string(actor.RoleDoctor),
			departments[dept], fmt.Sprintf("LIC-%06d", faker.Number(1, 999999)), deptIDs[dept],
			faker.Float64Range(50, 300), avail)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			dob := faker.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-1, 0, 0))
			contact, err := json.Marshal(actor.EmergencyContact{
				Name:         faker.Name(),
				Relationship: faker.RandomString([]string{"parent", "spouse", "sibling", "friend"}),
				PhoneNumber:  faker.Phone(),
			})
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO actors (id, name, email, role, is_active,
				                    phone_number, date_of_birth, address, emergency_contact)
				VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8)
			`, uuid.New(), faker.Name(), uniqueEmail("patient", i, faker), string(actor.RolePatient),
				faker.Phone(), schedule.Date(dob), faker.Street()+", "+faker.City(), contact)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger) error {
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO actors (id, name, email, role, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, id, faker.Name(), uniqueEmail("admin", int(time.Now().Unix()), faker), string(actor.RoleAdmin))
	if err != nil {
		return err
	}
	logger.Info().Stringer("admin_id", id).Msg("admin seeded")
	return nil
}

// uniqueEmail prefixes a fake address so reruns and large batches do not trip
// the unique email constraint.
func uniqueEmail(kind string, n int, faker *gofakeit.Faker) string {
	return fmt.Sprintf("%s%06d-%s.%s", kind, n, faker.LetterN(6), faker.Email())
}
