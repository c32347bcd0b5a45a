package main

import (
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ehs-handlers/internal/form"
	"github.com/pesio-ai/be-ehs-handlers/internal/workflow"
)

func newApproversCmd(g *globalFlags) *cobra.Command {
	var (
		step       int
		dept       string
		fieldsPath string
		formPath   string
		sheet      string
	)

	cmd := &cobra.Command{
		Use:   "approvers",
		Short: "List the approvers of a permit step for an applicant department",
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := loadGraph(g.org)
			if err != nil {
				return err
			}
			steps, err := loadSteps(g.workflow)
			if err != nil {
				return err
			}
			s, err := selectStep(steps, step)
			if err != nil {
				return err
			}

			var fields form.Fields
			if fieldsPath != "" {
				if err := decodeFile(fieldsPath, &fields); err != nil {
					return err
				}
			}
			if formPath != "" {
				if fields.Data, err = loadWorkbook(formPath, sheet, fields.Data); err != nil {
					return err
				}
			}

			r := workflow.Resolver{Log: g.logger()}
			users := r.Approvers(dept, s, fields.Data, fields.Parsed, graph)
			return writeJSON(cmd.OutOrStdout(), users)
		},
	}

	cmd.Flags().IntVar(&step, "step", 0, "Step index")
	cmd.Flags().StringVar(&dept, "dept", "", "Applicant department id or name")
	cmd.Flags().StringVar(&fieldsPath, "fields", "", "Template fields YAML (parsedFields, formData)")
	cmd.Flags().StringVar(&formPath, "form", "", "Filled-in permit workbook (.xlsx)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Workbook sheet (default first)")
	return cmd
}
