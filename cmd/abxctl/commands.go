package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"abxcore/internal/core"
	"abxcore/pkg/domain"
	"abxcore/plugins/abx"

	"github.com/spf13/cobra"
)

type installReport struct {
	Plugin           core.PluginMetadata `json:"plugin"`
	InstalledVersion string              `json:"installed_version"`
}

func newInstallCmd(opts *rootOptions) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install or reinstall the senaite.abx profile",
		Long: `Registers the antibiotic types, creates the setup folders and the
default antibiotic classes. Running it again repairs missing folders and
classes without touching existing records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				meta, err := a.svc.InstallPlugin(ctx, a.plugin(seed))
				if err != nil {
					return err
				}
				version, err := a.svc.InstalledVersion(ctx, abx.Name)
				if err != nil {
					return err
				}
				return a.out.Print(installReport{Plugin: meta, InstalledVersion: version})
			})
		},
	}
	cmd.Flags().BoolVar(&seed, "seed-antibiotics", false, "also create the default antibiotics")
	return cmd
}

type upgradeReport struct {
	Plugin           string   `json:"plugin"`
	Applied          []string `json:"applied"`
	InstalledVersion string   `json:"installed_version"`
}

func newUpgradeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Run pending profile upgrade steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.loadPlugin(ctx); err != nil {
					return err
				}
				applied, err := a.svc.Upgrade(ctx, abx.Name)
				if err != nil {
					return err
				}
				version, err := a.svc.InstalledVersion(ctx, abx.Name)
				if err != nil {
					return err
				}
				if applied == nil {
					applied = []string{}
				}
				return a.out.Print(upgradeReport{Plugin: abx.Name, Applied: applied, InstalledVersion: version})
			})
		},
	}
}

func newUninstallCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall the senaite.abx profile, keeping stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.loadPlugin(ctx); err != nil {
					return err
				}
				if err := a.svc.UninstallPlugin(ctx, abx.Name); err != nil {
					return err
				}
				return a.out.Print(map[string]any{"plugin": abx.Name, "uninstalled": true})
			})
		},
	}
}

type statusReport struct {
	Plugin           string `json:"plugin"`
	ProfileVersion   string `json:"profile_version"`
	InstalledVersion string `json:"installed_version"`
	UpgradePending   bool   `json:"upgrade_pending"`
	Classes          int    `json:"antibiotic_classes"`
	Antibiotics      int    `json:"antibiotics"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the installed profile version and record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				report := statusReport{Plugin: abx.Name, ProfileVersion: abx.ProfileVersion}
				err := a.svc.View(ctx, func(v core.TransactionView) error {
					report.InstalledVersion = v.InstalledVersion(abx.Name)
					report.Classes = len(v.Search(core.Query{PortalType: domain.TypeAntibioticClass}))
					report.Antibiotics = len(v.Search(core.Query{PortalType: domain.TypeAntibiotic}))
					return nil
				})
				if err != nil {
					return err
				}
				report.UpgradePending = report.InstalledVersion != "" &&
					core.CompareVersions(report.InstalledVersion, abx.ProfileVersion) < 0
				return a.out.Print(report)
			})
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-antibiotics",
		Short: "Create the default antibiotics that are still missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.loadPlugin(ctx); err != nil {
					return err
				}
				before, err := a.svc.Search(ctx, core.Query{PortalType: domain.TypeAntibiotic})
				if err != nil {
					return err
				}
				if _, err := a.svc.Execute(ctx, "seed_antibiotics", abx.SetupAntibiotics); err != nil {
					return err
				}
				after, err := a.svc.Search(ctx, core.Query{PortalType: domain.TypeAntibiotic})
				if err != nil {
					return err
				}
				return a.out.Print(map[string]int{"created": len(after) - len(before), "antibiotics": len(after)})
			})
		},
	}
}

func newVocabularyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vocabulary [name]",
		Short: "Print the terms of a vocabulary",
		Long:  "Prints the terms of the named vocabulary, by default " + abx.VocabularyAntibioticClasses + ".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := abx.VocabularyAntibioticClasses
			if len(args) == 1 {
				name = args[0]
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.loadPlugin(ctx); err != nil {
					return err
				}
				terms, err := a.svc.Vocabulary(ctx, name)
				if err != nil {
					return err
				}
				return a.out.Print(terms)
			})
		},
	}
}

type classRow struct {
	UID         string `json:"uid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

func newListCmd(opts *rootOptions) *cobra.Command {
	list := &cobra.Command{
		Use:   "list",
		Short: "List antibiotics or antibiotic classes",
	}
	var state string
	antibiotics := &cobra.Command{
		Use:   "antibiotics",
		Short: "List antibiotics with their class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var rows []abx.ListingRow
				err := a.svc.View(ctx, func(v core.TransactionView) error {
					var err error
					rows, err = abx.ListAntibiotics(v, abx.ReviewState(state))
					return err
				})
				if err != nil {
					return err
				}
				return a.out.Print(rows)
			})
		},
	}
	antibiotics.Flags().StringVar(&state, "review-state", string(abx.ReviewStateActive), "default (active), inactive or all")

	var classState string
	classes := &cobra.Command{
		Use:   "classes",
		Short: "List antibiotic classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := core.Query{PortalType: domain.TypeAntibioticClass, SortOn: domain.SortOnTitle, SortOrder: domain.SortAscending}
			switch abx.ReviewState(classState) {
			case abx.ReviewStateActive, "":
				q.IsActive = domain.Active(true)
			case abx.ReviewStateInactive:
				q.IsActive = domain.Active(false)
			case abx.ReviewStateAll:
			default:
				return fmt.Errorf("unknown review state %q", classState)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				rows := []classRow{}
				err := a.svc.View(ctx, func(v core.TransactionView) error {
					for _, b := range v.Search(q) {
						c, ok := v.FindAntibioticClass(b.UID)
						if !ok {
							continue
						}
						rows = append(rows, classRow{UID: c.UID, Title: c.Title, Description: c.Description, Active: c.Active})
					}
					return nil
				})
				if err != nil {
					return err
				}
				return a.out.Print(rows)
			})
		},
	}
	classes.Flags().StringVar(&classState, "review-state", string(abx.ReviewStateActive), "default (active), inactive or all")

	list.AddCommand(antibiotics, classes)
	return list
}

// antibioticInput collects the editable antibiotic fields from flags.
type antibioticInput struct {
	title        string
	abbreviation string
	class        string
	description  string
}

func (in *antibioticInput) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.title, "title", "", "antibiotic name")
	cmd.Flags().StringVar(&in.abbreviation, "abbreviation", "", "unique abbreviation")
	cmd.Flags().StringVar(&in.class, "class", "", "antibiotic class UID or title")
	cmd.Flags().StringVar(&in.description, "description", "", "free text description")
}

// resolveClass accepts a class UID or an exact class title.
func resolveClass(v core.TransactionView, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	if _, ok := v.FindAntibioticClass(ref); ok {
		return ref, nil
	}
	for _, c := range v.ListAntibioticClasses() {
		if c.Title == ref {
			return c.UID, nil
		}
	}
	return "", &domain.FieldError{Field: "antibiotic_class", Message: fmt.Sprintf("no antibiotic class %q", ref)}
}

// checkAntibiotic runs the form validators the way an add or edit form
// would before saving. uid is empty for new records.
func checkAntibiotic(v core.TransactionView, uid, title, abbreviation string) error {
	verr := &domain.ValidationError{}
	for _, err := range []error{
		abx.ValidateTitle(v, uid, title),
		abx.ValidateAbbreviation(v, uid, abbreviation),
	} {
		var fe *domain.FieldError
		if errors.As(err, &fe) {
			verr.Errors = append(verr.Errors, fe)
		} else if err != nil {
			return err
		}
	}
	if len(verr.Errors) > 0 {
		return verr
	}
	return nil
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an antibiotic or an antibiotic class",
	}

	var in antibioticInput
	antibiotic := &cobra.Command{
		Use:   "antibiotic",
		Short: "Add an antibiotic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.loadPlugin(ctx); err != nil {
					return err
				}
				record := core.Antibiotic{
					Base:         core.Base{Title: strings.TrimSpace(in.title), Description: in.description},
					Abbreviation: in.abbreviation,
				}
				err := a.svc.View(ctx, func(v core.TransactionView) error {
					if err := checkAntibiotic(v, "", record.Title, record.Abbreviation); err != nil {
						return err
					}
					classUID, err := resolveClass(v, in.class)
					record.AntibioticClassUID = classUID
					return err
				})
				if err != nil {
					return err
				}
				created, _, err := a.svc.CreateAntibiotic(ctx, record)
				if err != nil {
					return err
				}
				return a.out.Print(created)
			})
		},
	}
	in.bind(antibiotic)

	var classTitle, classDescription string
	class := &cobra.Command{
		Use:   "class",
		Short: "Add an antibiotic class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.loadPlugin(ctx); err != nil {
					return err
				}
				created, _, err := a.svc.CreateAntibioticClass(ctx, core.AntibioticClass{
					Base: core.Base{Title: strings.TrimSpace(classTitle), Description: classDescription},
				})
				if err != nil {
					return err
				}
				return a.out.Print(created)
			})
		},
	}
	class.Flags().StringVar(&classTitle, "title", "", "class name")
	class.Flags().StringVar(&classDescription, "description", "", "free text description")

	add.AddCommand(antibiotic, class)
	return add
}

func newEditCmd(opts *rootOptions) *cobra.Command {
	var in antibioticInput
	cmd := &cobra.Command{
		Use:   "edit <uid>",
		Short: "Edit an existing antibiotic; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid := args[0]
			changed := cmd.Flags().Changed
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.loadPlugin(ctx); err != nil {
					return err
				}
				current, err := a.svc.GetAntibiotic(ctx, uid)
				if err != nil {
					return err
				}
				next := current
				if changed("title") {
					next.Title = strings.TrimSpace(in.title)
				}
				if changed("abbreviation") {
					next.Abbreviation = in.abbreviation
				}
				if changed("description") {
					next.Description = in.description
				}
				err = a.svc.View(ctx, func(v core.TransactionView) error {
					if err := checkAntibiotic(v, uid, next.Title, next.Abbreviation); err != nil {
						return err
					}
					if changed("class") {
						classUID, err := resolveClass(v, in.class)
						next.AntibioticClassUID = classUID
						return err
					}
					return nil
				})
				if err != nil {
					return err
				}
				updated, _, err := a.svc.UpdateAntibiotic(ctx, uid, func(rec *core.Antibiotic) error {
					rec.Title = next.Title
					rec.Abbreviation = next.Abbreviation
					rec.Description = next.Description
					rec.AntibioticClassUID = next.AntibioticClassUID
					return nil
				})
				if err != nil {
					return err
				}
				return a.out.Print(updated)
			})
		},
	}
	in.bind(cmd)
	return cmd
}

func newActiveCmd(opts *rootOptions, active bool) *cobra.Command {
	use, short := "activate", "Activate records"
	if !active {
		use, short = "deactivate", "Deactivate records"
	}
	return &cobra.Command{
		Use:   use + " <uid>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.loadPlugin(ctx); err != nil {
					return err
				}
				out := make([]core.Base, 0, len(args))
				for _, uid := range args {
					b, _, err := a.svc.SetActive(ctx, uid, active)
					if err != nil {
						return err
					}
					out = append(out, b)
				}
				return a.out.Print(out)
			})
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.loadPlugin(ctx); err != nil {
					return err
				}
				if _, err := a.svc.Delete(ctx, args[0]); err != nil {
					return err
				}
				return a.out.Print(map[string]any{"uid": args[0], "deleted": true})
			})
		},
	}
}

func newBackupCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "backup",
		Short: "Create, list and restore repository snapshots",
	}
	create := &cobra.Command{
		Use:   "create",
		Short: "Write a snapshot archive and rotate old ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				m, err := a.backups(ctx)
				if err != nil {
					return err
				}
				info, err := m.Create(ctx)
				if err != nil {
					return err
				}
				return a.out.Print(info)
			})
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshot archives, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				m, err := a.backups(ctx)
				if err != nil {
					return err
				}
				infos, err := m.List(ctx)
				if err != nil {
					return err
				}
				return a.out.Print(infos)
			})
		},
	}
	restore := &cobra.Command{
		Use:   "restore [key]",
		Short: "Replace the repository content with an archive (newest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				m, err := a.backups(ctx)
				if err != nil {
					return err
				}
				restored, err := m.Restore(ctx, key)
				if err != nil {
					return err
				}
				return a.out.Print(map[string]string{"restored": restored})
			})
		},
	}
	root.AddCommand(create, list, restore)
	return root
}
