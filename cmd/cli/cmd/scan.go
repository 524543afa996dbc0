package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/junjiewwang/classgraph/internal/discovery"
	"github.com/junjiewwang/classgraph/internal/repository"
	"github.com/junjiewwang/classgraph/internal/scanner"
	"github.com/junjiewwang/classgraph/internal/storage"
	"github.com/junjiewwang/classgraph/pkg/config"
	"github.com/junjiewwang/classgraph/pkg/filter"
	"github.com/junjiewwang/classgraph/pkg/parallel"
	"github.com/junjiewwang/classgraph/pkg/utils"
	"github.com/junjiewwang/classgraph/pkg/writer"
)

var (
	scanClasspath []string
	scanSeeds     []string
	scanWorkers   int
	scanOutput    string

	scanIgnoreClassVisibility bool
	scanEnableInterClassDeps  bool
	scanExtendUpwards         bool
	scanSkipJDKExternal       bool

	scanPersist    bool
	scanDBType     string
	scanDBPath     string
	scanDBHost     string
	scanDBPort     int
	scanDBName     string
	scanDBUser     string
	scanDBPassword string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a classpath and build a class/package/module graph",
	Long: `Scan parses every classfile reachable from the given classpath roots,
decodes their constant pools, basic info, fields, methods, and annotations,
and links the result into a graph of classes, packages, and modules.

Each classpath entry must be a directory of .class files; archive (jar/zip)
traversal is not performed. Use --extend-upwards to additionally pull in
and scan superclasses, interfaces, and annotation classes that the scanned
classes reference but that are not among the seeds; they are looked up on
the same classpath roots.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	binName := BinName()
	scanCmd.Example = `  # Scan a directory of classfiles
  ` + binName + ` scan --classpath ./build/classes --seed com/example/Main.class

  # Scan and follow references to external classes
  ` + binName + ` scan --classpath ./build/classes --extend-upwards

  # Write the linked graph summary to a file
  ` + binName + ` scan --classpath ./build/classes -o graph.json`

	scanCmd.Flags().StringSliceVar(&scanClasspath, "classpath", nil, "Ordered list of classpath root directories (required)")
	scanCmd.Flags().StringSliceVar(&scanSeeds, "seed", nil, "Classpath-relative .class paths to seed the scan with")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 5, "Number of concurrent parser workers")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "Write the graph summary as JSON to this file (stdout if empty)")

	scanCmd.Flags().BoolVar(&scanIgnoreClassVisibility, "ignore-class-visibility", false, "Scan non-public classes too")
	scanCmd.Flags().BoolVar(&scanEnableInterClassDeps, "enable-inter-class-dependencies", true, "Collect inter-class reference edges")
	scanCmd.Flags().BoolVar(&scanExtendUpwards, "extend-upwards", false, "Follow superclass/interface/annotation references beyond the seeds, looking them up on the classpath")
	scanCmd.Flags().BoolVar(&scanSkipJDKExternal, "skip-jdk-external", false, "When following references beyond the seeds, don't schedule JDK or framework-internal classes")

	scanCmd.Flags().BoolVar(&scanPersist, "persist", false, "Save the linked graph as a scan snapshot row after scanning")
	scanCmd.Flags().StringVar(&scanDBType, "db-type", "sqlite", "Snapshot database type: sqlite, postgres, or mysql")
	scanCmd.Flags().StringVar(&scanDBPath, "db-path", "classgraph.db", "Database file path, used when --db-type is sqlite")
	scanCmd.Flags().StringVar(&scanDBHost, "db-host", "localhost", "Database host, used when --db-type is postgres or mysql")
	scanCmd.Flags().IntVar(&scanDBPort, "db-port", 5432, "Database port, used when --db-type is postgres or mysql")
	scanCmd.Flags().StringVar(&scanDBName, "db-name", "classgraph", "Database name, used when --db-type is postgres or mysql")
	scanCmd.Flags().StringVar(&scanDBUser, "db-user", "", "Database user, used when --db-type is postgres or mysql")
	scanCmd.Flags().StringVar(&scanDBPassword, "db-password", "", "Database password, used when --db-type is postgres or mysql")

	scanCmd.MarkFlagRequired("classpath")
}

func runScan(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	elements := make([]discovery.ClasspathElement, 0, len(scanClasspath))
	for _, root := range scanClasspath {
		if _, err := os.Stat(root); err != nil {
			return fmt.Errorf("classpath root %q: %w", root, err)
		}
		elements = append(elements, discovery.NewLocalElement(root))
	}

	scanCfg := &config.ScanConfig{
		IgnoreClassVisibility:        scanIgnoreClassVisibility,
		EnableFieldInfo:              true,
		EnableMethodInfo:             true,
		EnableAnnotationInfo:         true,
		EnableInterClassDependencies: scanEnableInterClassDeps,
		ExtendScanningUpwardsToExternalClasses: scanExtendUpwards,
	}
	spec := scanCfg.ToScanSpec()

	seeds := scanSeeds
	if len(seeds) == 0 {
		discovered, err := discoverClassfilesAcrossRoots(context.Background(), scanClasspath)
		if err != nil {
			return fmt.Errorf("discovering seed classfiles: %w", err)
		}
		seeds = discovered
	}

	log.Info("scanning %d classpath root(s), %d seed(s)", len(elements), len(seeds))

	session := scanner.NewSession(elements, spec, scanWorkers, log)
	if scanSkipJDKExternal {
		session.ExternalClassFilter = filter.NewClassFilter()
	}

	ctx := context.Background()
	result, err := session.Scan(ctx, seeds)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	log.Info("linked %d classes, %d packages, %d modules (%d non-fatal errors)",
		len(result.Graph.Classes), len(result.Graph.Packages), len(result.Graph.Modules), len(result.Errors))

	for _, scanErr := range result.Errors {
		log.Warn("%v", scanErr)
	}

	if scanPersist {
		if err := persistScanSnapshot(ctx, result, log); err != nil {
			return fmt.Errorf("persisting scan snapshot: %w", err)
		}
	}

	return writeGraphSummary(result, scanOutput)
}

// persistScanSnapshot opens a database connection per --db-type/--db-* and
// saves the linked graph as a scan_snapshot row under a freshly generated
// session UUID.
func persistScanSnapshot(ctx context.Context, result *scanner.Result, log utils.Logger) error {
	dbCfg := &repository.DBConfig{
		Type:     scanDBType,
		Host:     scanDBHost,
		Port:     scanDBPort,
		Database: scanDBName,
		User:     scanDBUser,
		Password: scanDBPassword,
	}
	if scanDBType == string(repository.DBTypeSQLite) {
		dbCfg.Database = scanDBPath
	}

	gormDB, err := repository.NewGormDB(dbCfg)
	if err != nil {
		return fmt.Errorf("opening snapshot database: %w", err)
	}
	repos := repository.NewRepositories(gormDB, scanDBType, BinName())
	defer repos.Close()

	sessionUUID := uuid.NewString()
	if err := repos.Scan.SaveSnapshot(ctx, sessionUUID, result.Graph); err != nil {
		return err
	}

	log.Info("saved scan snapshot %s (db: %s)", sessionUUID, scanDBType)
	return nil
}

// discoverClassfilesAcrossRoots walks every classpath root concurrently and
// returns the union of every discovered *.class path, used as the seed set
// when --seed is not given. Paths are relative to their own root, since
// that's what a ClasspathElement.GetResource call expects.
func discoverClassfilesAcrossRoots(ctx context.Context, roots []string) ([]string, error) {
	type rootResult struct {
		root  string
		paths []string
		err   error
	}

	combined := parallel.MapReduce(ctx, roots, parallel.DefaultPoolConfig(),
		func(ctx context.Context, root string) rootResult {
			paths, err := discoverClassfiles(root)
			return rootResult{root: root, paths: paths, err: err}
		},
		func(mapped []rootResult) rootResult {
			var all []string
			for _, m := range mapped {
				if m.err != nil {
					return rootResult{root: m.root, err: m.err}
				}
				all = append(all, m.paths...)
			}
			return rootResult{paths: all}
		},
	)
	if combined.err != nil {
		return nil, fmt.Errorf("%s: %w", combined.root, combined.err)
	}

	return combined.paths, nil
}

// discoverClassfiles walks root and returns every *.class path relative to
// it, used as the seed set when --seed is not given.
func discoverClassfiles(root string) ([]string, error) {
	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".class") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	return paths, err
}

type graphSummary struct {
	Classes  int      `json:"classes"`
	Packages int      `json:"packages"`
	Modules  int      `json:"modules"`
	Errors   []string `json:"errors,omitempty"`
}

func writeGraphSummary(result *scanner.Result, outputPath string) error {
	summary := graphSummary{
		Classes:  len(result.Graph.Classes),
		Packages: len(result.Graph.Packages),
		Modules:  len(result.Graph.Modules),
	}
	for _, e := range result.Errors {
		summary.Errors = append(summary.Errors, e.Error())
	}

	jw := writer.NewPrettyJSONWriter[graphSummary]()
	if outputPath == "" {
		return jw.Write(summary, os.Stdout)
	}
	return jw.WriteToFile(summary, outputPath)
}

// newCachedClasspathElement builds a discovery.ClasspathElement backed by
// object storage, for classpath roots pre-fetched into a storage bucket
// rather than present on local disk.
func newCachedClasspathElement(store storage.Storage, keyPrefix string) discovery.ClasspathElement {
	return discovery.NewCachedElement(store, keyPrefix)
}
