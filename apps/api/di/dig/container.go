package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/labportal/apps/api/echo"
	"github.com/trezcool/labportal/core"
	"github.com/trezcool/labportal/core/bom"
	"github.com/trezcool/labportal/core/user"
	emailsvc "github.com/trezcool/labportal/services/email"
	logsvc "github.com/trezcool/labportal/services/logger"
	metricsvc "github.com/trezcool/labportal/services/metrics"
	"github.com/trezcool/labportal/storage/database"
	inmemdb "github.com/trezcool/labportal/storage/database/inmem"
	sqlxrepos "github.com/trezcool/labportal/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Storage holds the repositories of the configured engine. DB is nil for the in-memory engine.
type Storage struct {
	dig.Out
	DB       *sqlx.DB
	UserRepo user.Repository
	BOMRepo  bom.Repository
}

func newLogger(conf *core.Config) *logsvc.RollbarLogger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.Engine == "memory" {
		db := inmemdb.Open()
		return Storage{
			UserRepo: inmemdb.NewUserRepository(db),
			BOMRepo:  inmemdb.NewBOMRepository(db),
		}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Storage{
		DB:       db,
		UserRepo: sqlxrepos.NewUserRepository(db),
		BOMRepo:  sqlxrepos.NewBOMRepository(db),
	}
}

func newOutbox(conf *core.Config, logger core.Logger) *emailsvc.Outbox {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger, os.Stdout)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	usrSvc user.Service,
	bomSvc bom.Service,
	prom *metricsvc.Prometheus,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.Options{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        usrSvc,
		BOMSvc:         bomSvc,
		MetricsHandler: prom.Handler(),
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(func(l *logsvc.RollbarLogger) core.Logger { return l }))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newOutbox))
	must(c.Provide(func(ob *emailsvc.Outbox) core.EmailService { return ob }))
	must(c.Provide(metricsvc.NewPrometheus))
	must(c.Provide(func(p *metricsvc.Prometheus) bom.Metrics { return p }))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(func(svc user.Service) bom.UserFinder { return svc }))
	must(c.Provide(bom.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
