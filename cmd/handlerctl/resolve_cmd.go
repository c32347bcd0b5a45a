package main

import (
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ehs-handlers/internal/strategy"
	"github.com/pesio-ai/be-ehs-handlers/internal/workflow"
)

func newResolveCmd(g *globalFlags) *cobra.Command {
	var (
		recordPath string
		step       int
		formPath   string
		sheet      string
		applicant  string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve one step (or every step) of a workflow for a record",
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := loadGraph(g.org)
			if err != nil {
				return err
			}
			steps, err := loadSteps(g.workflow)
			if err != nil {
				return err
			}
			var record strategy.Record
			if err := decodeFile(recordPath, &record); err != nil {
				return err
			}
			if formPath != "" {
				if record.Fields.Data, err = loadWorkbook(formPath, sheet, record.Fields.Data); err != nil {
					return err
				}
			}

			r := workflow.Resolver{Log: g.logger(), ApplicantDepartment: applicant}
			if step < 0 {
				return writeJSON(cmd.OutOrStdout(), r.Workflow(record, steps, graph))
			}
			s, err := selectStep(steps, step)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), r.Handlers(record, s, graph))
		},
	}

	cmd.Flags().StringVar(&recordPath, "record", "", "Record YAML (required)")
	cmd.Flags().IntVar(&step, "step", -1, "Step index; omit to resolve every step")
	cmd.Flags().StringVar(&formPath, "form", "", "Filled-in permit workbook (.xlsx)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Workbook sheet (default first)")
	cmd.Flags().StringVar(&applicant, "dept", "", "Applicant department id or name")
	_ = cmd.MarkFlagRequired("record")
	return cmd
}
