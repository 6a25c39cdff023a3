// Package main contains the cli implementation of the tool. It uses cobra
// package for cli tool implementation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"ncube/internal/axis"
	"ncube/internal/cube"
	"ncube/internal/ncube/registry"
	"ncube/internal/permission"
	"ncube/internal/persist"
	"ncube/internal/persist/mem"
	sqlpersist "ncube/internal/persist/sql"
	"ncube/internal/sysparams"
	"ncube/internal/value"
)

type rootFlags struct {
	dsn    string
	user   string
	tenant string
	app    string
}

type appIDFlags struct {
	version string
	status  string
	branch  string
}

func (f appIDFlags) resolve(rf *rootFlags, name string) cube.ApplicationID {
	status := cube.StatusSnapshot
	if strings.EqualFold(f.status, string(cube.StatusRelease)) {
		status = cube.StatusRelease
	}
	version := f.version
	if version == "" {
		version = "0.1.0"
	}
	branch := f.branch
	if branch == "" {
		branch = cube.HeadBranch
	}
	return cube.ApplicationID{Tenant: rf.tenant, App: rf.app, Version: version, Status: status, Branch: branch}
}

func main() {
	root := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:   "ncube",
		Short: "Multi-dimensional decision table store",
	}
	rootCmd.PersistentFlags().StringVar(&root.dsn, "dsn", "", "MySQL DSN; empty uses an in-memory store")
	rootCmd.PersistentFlags().StringVar(&root.user, "user", "cli", "acting user id for permission checks")
	rootCmd.PersistentFlags().StringVar(&root.tenant, "tenant", "sandbox", "tenant name")
	rootCmd.PersistentFlags().StringVar(&root.app, "app", "sandbox", "application name")

	rootCmd.AddCommand(lookupCmd(root))
	rootCmd.AddCommand(addAxisCmd(root))
	rootCmd.AddCommand(addColumnCmd(root))
	rootCmd.AddCommand(copyBranchCmd(root))
	rootCmd.AddCommand(releaseCmd(root))
	rootCmd.AddCommand(lockCmd(root))
	rootCmd.AddCommand(unlockCmd(root))
	rootCmd.AddCommand(listCmd(root))
	rootCmd.AddCommand(bootstrapCmd(root))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openRegistry(ctx context.Context, f *rootFlags) (*registry.Registry, func(), error) {
	var store persist.Persister
	closeFn := func() {}

	if f.dsn == "" {
		store = mem.New()
	} else {
		s, err := sqlpersist.Open(ctx, f.dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open MySQL store: %w", err)
		}
		store = s
		closeFn = func() { _ = s.Close() }
	}

	params, err := sysparams.Load()
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to load sysparams: %w", err)
	}

	var perm *permission.Engine
	if params.PermissionsBootstrapMode {
		perm = permission.NewEngine(nil, nil, nil, nil, true)
	}

	return registry.New(store, perm), closeFn, nil
}

func lookupCmd(root *rootFlags) *cobra.Command {
	var af appIDFlags
	var coordJSON string
	cmd := &cobra.Command{
		Use:   "lookup <cube>",
		Short: "Resolve a cell value for a coordinate",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runLookup(root, af, args[0], coordJSON)
		},
	}
	cmd.Flags().StringVar(&af.version, "version", "", "application version")
	cmd.Flags().StringVar(&af.status, "status", "SNAPSHOT", "SNAPSHOT or RELEASE")
	cmd.Flags().StringVar(&af.branch, "branch", "", "branch name, defaults to HEAD")
	cmd.Flags().StringVarP(&coordJSON, "coord", "c", "{}", "coordinate as a JSON object")
	return cmd
}

func runLookup(root *rootFlags, af appIDFlags, cubeName, coordJSON string) error {
	ctx := context.Background()
	r, closeFn, err := openRegistry(ctx, root)
	if err != nil {
		return err
	}
	defer closeFn()

	var coord map[string]any
	if err := json.Unmarshal([]byte(coordJSON), &coord); err != nil {
		return fmt.Errorf("--coord must be a JSON object: %w", err)
	}

	c, err := r.GetCube(ctx, af.resolve(root, cubeName), cubeName)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("cube %q not found", cubeName)
	}

	v, info, err := c.GetCell(coord, nil, "")
	if err != nil {
		return err
	}

	fmt.Printf("value: %v\n", v)
	if info != nil && len(info.Evaluated) > 0 {
		evaluated, fired := 0, 0
		for _, names := range info.Evaluated {
			evaluated += len(names)
		}
		for _, names := range info.Fired {
			fired += len(names)
		}
		fmt.Printf("rule axes evaluated: %d, fired: %d\n", evaluated, fired)
	}
	return nil
}

func addAxisCmd(root *rootFlags) *cobra.Command {
	var af appIDFlags
	var axisType, valueType, order string
	var hasDefault bool
	cmd := &cobra.Command{
		Use:   "add-axis <cube> <axis-name>",
		Short: "Add a new axis to a cube",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runAddAxis(root, af, args[0], args[1], axisType, valueType, order, hasDefault)
		},
	}
	cmd.Flags().StringVar(&af.version, "version", "", "application version")
	cmd.Flags().StringVar(&af.status, "status", "SNAPSHOT", "SNAPSHOT or RELEASE")
	cmd.Flags().StringVar(&af.branch, "branch", "", "branch name, defaults to HEAD")
	cmd.Flags().StringVar(&axisType, "type", "DISCRETE", "DISCRETE, RANGE, SET, NEAREST, or RULE")
	cmd.Flags().StringVar(&valueType, "value-type", "STRING", "column value type, e.g. STRING or LONG")
	cmd.Flags().StringVar(&order, "order", "SORTED", "SORTED or DISPLAY")
	cmd.Flags().BoolVar(&hasDefault, "has-default", false, "reserve a default column on this axis")
	return cmd
}

func runAddAxis(root *rootFlags, af appIDFlags, cubeName, axisName, axisType, valueType, order string, hasDefault bool) error {
	ctx := context.Background()
	r, closeFn, err := openRegistry(ctx, root)
	if err != nil {
		return err
	}
	defer closeFn()

	appID := af.resolve(root, cubeName)
	c, err := r.GetCube(ctx, appID, cubeName)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("cube %q not found", cubeName)
	}

	ord := axis.Sorted
	if strings.EqualFold(order, string(axis.Display)) {
		ord = axis.Display
	}

	a, err := axis.New(0, axisName, value.AxisType(strings.ToUpper(axisType)), value.Type(strings.ToUpper(valueType)), ord, hasDefault)
	if err != nil {
		return err
	}

	if err := r.AddAxisToCube(ctx, root.user, appID, cubeName, a); err != nil {
		return err
	}
	fmt.Printf("added axis %q to cube %q\n", axisName, cubeName)
	return nil
}

func addColumnCmd(root *rootFlags) *cobra.Command {
	var af appIDFlags
	var axisName string
	cmd := &cobra.Command{
		Use:   "add-column <cube> <value>",
		Short: "Add a discrete column to an axis",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runAddColumn(root, af, args[0], axisName, args[1])
		},
	}
	cmd.Flags().StringVar(&af.version, "version", "", "application version")
	cmd.Flags().StringVar(&af.status, "status", "SNAPSHOT", "SNAPSHOT or RELEASE")
	cmd.Flags().StringVar(&af.branch, "branch", "", "branch name, defaults to HEAD")
	cmd.Flags().StringVar(&axisName, "axis", "", "axis name to add the column to (required)")
	return cmd
}

func runAddColumn(root *rootFlags, af appIDFlags, cubeName, axisName, raw string) error {
	if axisName == "" {
		return fmt.Errorf("--axis is required")
	}
	ctx := context.Background()
	r, closeFn, err := openRegistry(ctx, root)
	if err != nil {
		return err
	}
	defer closeFn()

	appID := af.resolve(root, cubeName)
	c, err := r.GetCube(ctx, appID, cubeName)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("cube %q not found", cubeName)
	}
	a, ok := c.GetAxis(axisName)
	if !ok {
		return fmt.Errorf("cube %q has no axis %q", cubeName, axisName)
	}
	v, err := a.ParseValue(raw)
	if err != nil {
		return err
	}
	if _, err := a.AddColumn(v); err != nil {
		return err
	}
	if err := r.UpdateCube(ctx, root.user, c); err != nil {
		return err
	}
	fmt.Printf("added column %q to axis %q of cube %q\n", raw, axisName, cubeName)
	return nil
}

func copyBranchCmd(root *rootFlags) *cobra.Command {
	var af appIDFlags
	var toBranch string
	cmd := &cobra.Command{
		Use:   "copy-branch",
		Short: "Copy every cube from one branch to another",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCopyBranch(root, af, toBranch)
		},
	}
	cmd.Flags().StringVar(&af.version, "version", "", "application version")
	cmd.Flags().StringVar(&af.status, "status", "SNAPSHOT", "SNAPSHOT or RELEASE")
	cmd.Flags().StringVar(&af.branch, "branch", "", "source branch, defaults to HEAD")
	cmd.Flags().StringVar(&toBranch, "to-branch", "", "destination branch (required)")
	return cmd
}

func runCopyBranch(root *rootFlags, af appIDFlags, toBranch string) error {
	if toBranch == "" {
		return fmt.Errorf("--to-branch is required")
	}
	ctx := context.Background()
	r, closeFn, err := openRegistry(ctx, root)
	if err != nil {
		return err
	}
	defer closeFn()

	from := af.resolve(root, "")
	to := from.WithBranch(toBranch)
	if err := r.CopyBranch(ctx, root.user, from, to); err != nil {
		return err
	}
	fmt.Printf("copied branch %q to %q\n", from.Branch, toBranch)
	return nil
}

func releaseCmd(root *rootFlags) *cobra.Command {
	var af appIDFlags
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Promote HEAD/SNAPSHOT to an immutable RELEASE",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runRelease(root, af)
		},
	}
	cmd.Flags().StringVar(&af.version, "version", "", "application version")
	return cmd
}

func runRelease(root *rootFlags, af appIDFlags) error {
	ctx := context.Background()
	r, closeFn, err := openRegistry(ctx, root)
	if err != nil {
		return err
	}
	defer closeFn()

	appID := af.resolve(root, "")
	if err := r.ReleaseVersion(ctx, root.user, appID); err != nil {
		return err
	}
	fmt.Printf("released version %q\n", appID.Version)
	return nil
}

func lockCmd(root *rootFlags) *cobra.Command {
	var af appIDFlags
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Take the write lock on an application/branch",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			r, closeFn, err := openRegistry(ctx, root)
			if err != nil {
				return err
			}
			defer closeFn()
			appID := af.resolve(root, "")
			if err := r.LockApp(root.user, appID); err != nil {
				return err
			}
			fmt.Printf("locked %s as %q\n", appID, root.user)
			return nil
		},
	}
	cmd.Flags().StringVar(&af.version, "version", "", "application version")
	cmd.Flags().StringVar(&af.branch, "branch", "", "branch name, defaults to HEAD")
	return cmd
}

func unlockCmd(root *rootFlags) *cobra.Command {
	var af appIDFlags
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Release the write lock on an application/branch",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			r, closeFn, err := openRegistry(ctx, root)
			if err != nil {
				return err
			}
			defer closeFn()
			appID := af.resolve(root, "")
			if err := r.UnlockApp(root.user, appID); err != nil {
				return err
			}
			fmt.Printf("unlocked %s\n", appID)
			return nil
		},
	}
	cmd.Flags().StringVar(&af.version, "version", "", "application version")
	cmd.Flags().StringVar(&af.branch, "branch", "", "branch name, defaults to HEAD")
	return cmd
}

func listCmd(root *rootFlags) *cobra.Command {
	var af appIDFlags
	var namePattern string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Search cube names within an application coordinate",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			r, closeFn, err := openRegistry(ctx, root)
			if err != nil {
				return err
			}
			defer closeFn()
			appID := af.resolve(root, "")
			results, err := r.Search(ctx, root.user, appID, persist.SearchOptions{NamePattern: namePattern})
			if err != nil {
				return err
			}
			for _, info := range results {
				fmt.Println(info.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&af.version, "version", "", "application version")
	cmd.Flags().StringVar(&af.status, "status", "SNAPSHOT", "SNAPSHOT or RELEASE")
	cmd.Flags().StringVar(&af.branch, "branch", "", "branch name, defaults to HEAD")
	cmd.Flags().StringVar(&namePattern, "name", "", "substring match against cube name")
	return cmd
}

func bootstrapCmd(root *rootFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Seed sys.usergroups for a fresh tenant from a bootstrap.toml file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runBootstrap(root, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "configs/bootstrap.toml", "path to the bootstrap TOML document")
	return cmd
}

func runBootstrap(root *rootFlags, file string) error {
	b, err := sysparams.LoadBootstrap(file)
	if err != nil {
		return err
	}

	ctx := context.Background()
	r, closeFn, err := openRegistry(ctx, root)
	if err != nil {
		return err
	}
	defer closeFn()

	bootstrapAppID := cube.ApplicationID{
		Tenant: b.Tenant, App: b.App, Version: cube.BootstrapVersion, Status: cube.StatusSnapshot, Branch: cube.HeadBranch,
	}

	usergroups := cube.New("sys.usergroups", bootstrapAppID)
	userAxis, err := axis.New(0, "user", value.AxisDiscrete, value.TypeString, axis.Sorted, false)
	if err != nil {
		return err
	}
	for _, u := range b.AdminUsers {
		if _, err := userAxis.AddColumn(value.String(u)); err != nil {
			return err
		}
	}
	if err := usergroups.AddAxis(userAxis); err != nil {
		return err
	}
	for _, u := range b.AdminUsers {
		if err := usergroups.SetCell(map[string]any{"user": u}, []string{"admin"}); err != nil {
			return err
		}
	}

	if err := r.UpdateCube(ctx, root.user, usergroups); err != nil {
		return err
	}
	fmt.Printf("bootstrapped tenant %q / app %q with %d admin user(s)\n", b.Tenant, b.App, len(b.AdminUsers))
	return nil
}
